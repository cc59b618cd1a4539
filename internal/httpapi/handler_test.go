package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contaminer/pkg/config"
	"contaminer/pkg/health"
	"contaminer/pkg/lease"
	"contaminer/pkg/mail"
	"contaminer/pkg/middleware"
	"contaminer/pkg/remote"
	"contaminer/pkg/remote/remotetest"
	"contaminer/services/contabase"
	"contaminer/services/job"
	"contaminer/services/task"
	"contaminer/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

const catalogJSON = `{"categories": [
  {"id": 1, "name": "Protein in E.Coli", "selected_by_default": true, "contaminants": [
    {"uniprot_id": "P0ACJ8", "short_name": "CRP_ECOLI", "sequence": "MVLGKPQTDPTLEWFLSHCHIHKYPSKSTLIHQGEKAETLYYIVKGSVAVLIKDEEGKEMILSYLNQGDFIGELGLFEEGQERSAWVRAKTACEVAEISYKKFRQLIQVNPDILMRLSAQMARRLQVTSEKVGNLAFLDVTGRIAQTLLNLAKQPDAMTHPDGMQIKITRQEIGQIVGCSRETVGRILKMLEDQNLISAHGKTIVVYGTR", "packs": [
      {"number": 1, "structure": "2-mer", "models": [{"template": "1o3t", "residues": 200, "identity": 100}]}
    ]},
    {"uniprot_id": "P0AA25", "short_name": "THIO_ECOLI", "sequence": "SDKIIHLTDDSFDTDVLKADGAILVDFWAEWCGPCKMIAPILDEIADEYQGKLTVAKLNIDQNPGTAPKYGIRGIPTLLLFKNGEVAASKVGALSKGQLKEFLDANLA", "packs": [
      {"number": 1, "structure": "1-mer", "models": [{"template": "2trx", "residues": 108, "identity": 100}]}
    ], "references": [{"pubmed_id": 27924023}], "suggestions": [{"name": "Gros chat"}]}
  ]}
]}`

type fixture struct {
	router http.Handler
	jobs   *job.Service
	fake   *remotetest.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t,
		&contabase.ContaBase{}, &contabase.Category{}, &contabase.Contaminant{},
		&contabase.Pack{}, &contabase.Model{}, &contabase.Reference{}, &contabase.Suggestion{},
		&job.Job{}, &task.Task{},
	)

	catalog := contabase.NewService(contabase.ServiceParams{DB: db})
	categories, err := contabase.ParseExport([]byte(catalogJSON))
	require.NoError(t, err)
	_, err = catalog.Replace(context.Background(), categories, time.Now())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Cluster = config.ClusterConfig{ContaminerLocation: "/opt/ContaMiner", WorkDirectory: "/scratch/contaminer"}
	cfg.Local.UploadDirectory = t.TempDir()

	fake := remotetest.New()
	cluster := remote.NewClusterWith(fake, cfg.Cluster)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	jobs := job.NewService(job.ServiceParams{
		DB:      db,
		Config:  cfg,
		Node:    node,
		Cluster: cluster,
		Reconciler: task.NewReconciler(task.ReconcilerParams{
			DB:        db,
			Artifacts: task.NewArtifactsWith(cluster, t.TempDir(), nil),
		}),
		Locker: lease.NewLocalLocker(),
		Mailer: &mail.Recorder{},
	})

	router := NewRouter(RouterParams{
		Config:  cfg,
		Handler: NewHandler(HandlerParams{Config: cfg, Jobs: jobs, Catalog: catalog}),
		Health:  health.ProvideHealth(health.HealthParams{DB: db}),
	})
	return &fixture{router: router, jobs: jobs, fake: fake}
}

func (f *fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func upload(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("diffraction_data", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("MTZ DATA"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateJob(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, upload(t, "crystal.MTZ", map[string]string{
		"name":          "lysozyme",
		"email_address": "user@example.com",
		"contaminants":  "P0ACJ8, p0aa25",
	}))
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, false, body["error"])

	id := body["id"].(string)
	j, err := f.jobs.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, job.StatusSubmitted, j.Status)
	require.Equal(t, "user@example.com", j.Email)

	uploaded, ok := f.fake.File("/scratch/contaminer/contaminer_" + id + ".mtz")
	require.True(t, ok)
	require.Equal(t, "MTZ DATA", string(uploaded))
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, upload(t, "model.pdb", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "VALIDATION_FAILED", body["code"])

	w, body = f.do(t, upload(t, "data.cif", map[string]string{"contaminants": "NOPE"}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "VALIDATION_FAILED", body["code"])

	w, _ = f.do(t, upload(t, "data.cif", map[string]string{"confidential": "true"}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
	w, _ = f.do(t, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJob(t *testing.T) {
	f := newFixture(t)
	j, err := f.jobs.Create(context.Background(), job.CreateParams{Name: "test"})
	require.NoError(t, err)

	w, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "New", body["status"])
	require.Equal(t, "test", body["name"])

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/404", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", body["code"])

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID+"/result", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "PRECONDITION", body["code"])
}

func TestConfidentialJob(t *testing.T) {
	f := newFixture(t)
	j, err := f.jobs.Create(context.Background(), job.CreateParams{
		Name:         "secret",
		Author:       &job.Principal{ID: "spongebob", Email: "bob@sea.com"},
		Confidential: true,
	})
	require.NoError(t, err)

	w, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID+"/detailed_result", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FORBIDDEN", body["code"])

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID+"/detailed_result", nil)
	req.Header.Set(middleware.RemoteUserHeader, "patrick")
	w, _ = f.do(t, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID+"/detailed_result", nil)
	req.Header.Set(middleware.RemoteUserHeader, "spongebob")
	w, body = f.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, j.ID, body["id"])
	require.Empty(t, body["results"])
}

func TestGetFinalFileValidation(t *testing.T) {
	f := newFixture(t)
	j, err := f.jobs.Create(context.Background(), job.CreateParams{})
	require.NoError(t, err)

	w, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID+"/final/pdb?uniprot_id=P0ACJ8", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "BAD_REQUEST", body["code"])

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID+"/final/pdb?uniprot_id=P0ACJ8&pack_nb=1&space_group=P+1", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", body["code"])
}

func TestCatalogEndpoints(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/contaminants", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["contaminants"], 2)

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["categories"], 1)

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/category/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Protein in E.Coli", body["name"])

	w, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/category/9", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/contaminant/p0aa25", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "THIO_ECOLI", body["short_name"])
	require.EqualValues(t, 1, body["packs"])
	require.Equal(t, []any{float64(27924023)}, body["references"])
	require.Equal(t, []any{"Gros chat"}, body["suggestions"])

	w, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/contabase", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["categories"], 1)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, httptest.NewRequest(http.MethodGet, "/health/readiness", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "healthy", body["status"])
}

func TestListJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := &job.Principal{ID: "spongebob"}
	for range 3 {
		_, err := f.jobs.Create(ctx, job.CreateParams{Name: "mine", Author: author})
		require.NoError(t, err)
	}
	_, err := f.jobs.Create(ctx, job.CreateParams{Name: "other", Author: &job.Principal{ID: "patrick"}})
	require.NoError(t, err)

	w, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?limit=2", nil)
	req.Header.Set(middleware.RemoteUserHeader, "spongebob")
	w, body := f.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["jobs"], 2)
	info := body["page_info"].(map[string]any)
	require.Equal(t, true, info["has_more"])

	req = httptest.NewRequest(http.MethodGet, "/api/jobs?limit=2&cursor="+info["next_cursor"].(string), nil)
	req.Header.Set(middleware.RemoteUserHeader, "spongebob")
	w, body = f.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["jobs"], 1)
}
