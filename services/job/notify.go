package job

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"contaminer/pkg/mail"

	"go.uber.org/zap"
)

var completeTemplate = template.Must(template.New("complete").Parse(`<p>Dear user,</p>
<p>Your job{{if .Name}} <strong>{{.Name}}</strong>{{end}} is complete.</p>
<p>The results are available at <a href="{{.Link}}">{{.Link}}</a>.</p>
<p>The {{.Site}} team</p>
`))

var operatorTemplate = template.Must(template.New("operator").Parse(`<p>The update of job {{.ID}}{{if .Name}} ({{.Name}}){{end}} failed.</p>
<p>Status: {{.Status}}<br>Error code: {{.Code}}</p>
<pre>{{.Error}}</pre>
`))

const siteName = "ContaMiner"

// ResultURL is the public page of the job results.
func (s *Service) ResultURL(j *Job) string {
	return strings.TrimRight(s.cfg.Mail.SiteURL, "/") + "/jobs/" + j.ID
}

// notifyCompletion mails the job owner once and records it in notified_at.
func (s *Service) notifyCompletion(ctx context.Context, j *Job) error {
	if j.NotifiedAt != nil {
		return nil
	}

	if j.Email != "" {
		var body bytes.Buffer
		if err := completeTemplate.Execute(&body, map[string]string{
			"Name": j.Name,
			"Link": s.ResultURL(j),
			"Site": siteName,
		}); err != nil {
			return err
		}

		err := s.mailer.Send(ctx, mail.Message{
			Subject: "Job complete",
			Text:    fmt.Sprintf("Your job %s is complete: %s", j.Name, s.ResultURL(j)),
			HTML:    body.String(),
			To:      []string{j.Email},
		})
		s.metrics.ObserveNotification("completion", err)
		if err != nil {
			zap.L().Error("[Job] completion mail failed", zap.String("job_id", j.ID), zap.Error(err))
			return err
		}
		zap.L().Info("[Job] completion mail sent", zap.String("job_id", j.ID), zap.String("email", j.Email))
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", j.ID).
		Update("notified_at", now).Error; err != nil {
		return err
	}
	j.NotifiedAt = &now
	return nil
}

// notifyOperator reports a failed update to the operator address.
func (s *Service) notifyOperator(ctx context.Context, j *Job, cause error) {
	if s.cfg.Mail.Operator == "" {
		zap.L().Warn("[Job] no operator address, update failure only logged", zap.String("job_id", j.ID))
		return
	}

	var body bytes.Buffer
	if err := operatorTemplate.Execute(&body, map[string]any{
		"ID":     j.ID,
		"Name":   j.Name,
		"Status": j.Status.Display(),
		"Code":   codeOf(cause),
		"Error":  cause.Error(),
	}); err != nil {
		zap.L().Error("[Job] render operator mail", zap.Error(err))
		return
	}

	err := s.mailer.Send(ctx, mail.Message{
		Subject: fmt.Sprintf("[%s] update of job %s failed", siteName, j.ID),
		Text:    fmt.Sprintf("Update of job %s failed: %v", j.ID, cause),
		HTML:    body.String(),
		To:      []string{s.cfg.Mail.Operator},
	})
	s.metrics.ObserveNotification("operator", err)
	if err != nil {
		zap.L().Error("[Job] operator mail failed", zap.String("job_id", j.ID), zap.Error(err))
	}
}
