package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"contaminer/pkg/config"
	"contaminer/pkg/db/pagination"
	"contaminer/pkg/errutil"
	"contaminer/pkg/middleware"
	"contaminer/services/contabase"
	"contaminer/services/job"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Handler struct {
	jobs      *job.Service
	catalog   *contabase.Service
	uploadDir string
}

type HandlerParams struct {
	fx.In

	Config  *config.Config
	Jobs    *job.Service
	Catalog *contabase.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		jobs:      p.Jobs,
		catalog:   p.Catalog,
		uploadDir: p.Config.Local.UploadDirectory,
	}
}

func (h *Handler) Register(api *gin.RouterGroup) {
	jobs := api.Group("/jobs")
	jobs.POST("", h.CreateJob)
	jobs.GET("", h.ListJobs)
	jobs.GET("/:id", h.GetJob)
	jobs.GET("/:id/result", h.GetResult)
	jobs.GET("/:id/detailed_result", h.GetDetailedResult)
	jobs.GET("/:id/final/:format", h.GetFinalFile)

	api.GET("/contabase", h.GetContaBase)
	api.GET("/categories", h.ListCategories)
	api.GET("/category/:id", h.GetCategory)
	api.GET("/contaminants", h.ListContaminants)
	api.GET("/contaminant/:uniprot_id", h.GetContaminant)
}

// CreateJob stores the uploaded diffraction data and queues the submission.
func (h *Handler) CreateJob(c *gin.Context) {
	file, err := c.FormFile("diffraction_data")
	if err != nil {
		_ = c.Error(errutil.ValidationFailed("diffraction data is required", err,
			errutil.WithDetails(errutil.Detail{Field: "diffraction_data", Message: "missing file"})))
		return
	}
	suffix := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Filename)), ".")
	if !slices.Contains(job.InputSuffixes, suffix) {
		_ = c.Error(errutil.ValidationFailed("unsupported diffraction data format", nil,
			errutil.WithDetails(errutil.Detail{Field: "diffraction_data", Message: "expected a .mtz or .cif file"})))
		return
	}

	confidential, _ := strconv.ParseBool(c.DefaultPostForm("confidential", "false"))
	params := job.CreateParams{
		Name:         strings.TrimSpace(c.PostForm("name")),
		Email:        strings.TrimSpace(c.PostForm("email_address")),
		Confidential: confidential,
		Contaminants: splitList(c.PostForm("contaminants")),
	}
	if p := middleware.PrincipalFrom(c); p.ID != "" {
		params.Author = &job.Principal{ID: p.ID, Email: p.Email}
	}
	if params.Confidential && params.Author == nil {
		_ = c.Error(errutil.ValidationFailed("confidential jobs need an authenticated author", nil,
			errutil.WithDetails(errutil.Detail{Field: "confidential", Message: "login required"})))
		return
	}

	ctx := c.Request.Context()
	j, err := h.jobs.Create(ctx, params)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		_ = c.Error(errutil.Internal("create upload directory", err))
		return
	}
	dst := filepath.Join(h.uploadDir, j.Filename(suffix))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		_ = c.Error(errutil.Internal("store diffraction data", err))
		return
	}

	if err := h.jobs.EnqueueSubmit(ctx, j, dst); err != nil {
		_ = c.Error(err)
		return
	}

	zap.L().Info("[HTTP] job created", zap.String("job_id", j.ID), zap.String("file", file.Filename))
	c.JSON(http.StatusAccepted, gin.H{"error": false, "id": j.ID})
}

// ListJobs pages through the jobs of the authenticated user.
func (h *Handler) ListJobs(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	if p.ID == "" {
		_ = c.Error(errutil.Forbidden("login required to list jobs", nil))
		return
	}
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	jobs, info, err := h.jobs.ListByAuthor(c.Request.Context(), p.ID, page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]job.SimpleDict, 0, len(jobs))
	for i := range jobs {
		out = append(out, jobs[i].ToSimpleDict())
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out, "page_info": info})
}

func (h *Handler) GetJob(c *gin.Context) {
	j, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, j.ToSimpleDict())
}

// GetResult lists the best task per contaminant of a complete job.
func (h *Handler) GetResult(c *gin.Context) {
	j, ok := h.readableJob(c)
	if !ok {
		return
	}
	if !j.Complete() {
		_ = c.Error(errutil.Precondition("job "+j.ID+" is not yet complete", nil))
		return
	}

	res, err := h.jobs.SimpleResult(c.Request.Context(), j)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetDetailedResult(c *gin.Context) {
	j, ok := h.readableJob(c)
	if !ok {
		return
	}

	d, err := h.jobs.ToDetailedDict(c.Request.Context(), j)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GetFinalFile sends final.pdb or final.mtz of one task.
func (h *Handler) GetFinalFile(c *gin.Context) {
	j, ok := h.readableJob(c)
	if !ok {
		return
	}

	uniprotID := c.Query("uniprot_id")
	spaceGroup := c.Query("space_group")
	packNumber, err := strconv.Atoi(c.Query("pack_nb"))
	if err != nil || uniprotID == "" || spaceGroup == "" {
		_ = c.Error(errutil.BadRequest("uniprot_id, pack_nb and space_group are required", err))
		return
	}

	format := c.Param("format")
	path, err := h.jobs.FinalFile(c.Request.Context(), j, uniprotID, packNumber, spaceGroup, format)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// readableJob loads the job of the request and refuses confidential jobs to
// anyone but their author.
func (h *Handler) readableJob(c *gin.Context) (*job.Job, bool) {
	j, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	if !j.ReadableBy(middleware.PrincipalFrom(c).ID) {
		_ = c.Error(errutil.Forbidden("job "+j.ID+" is confidential", nil))
		return nil, false
	}
	return j, true
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' }) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
