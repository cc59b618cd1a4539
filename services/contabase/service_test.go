package contabase

import (
	"context"
	"errors"
	"testing"
	"time"

	"contaminer/pkg/config"
	"contaminer/pkg/errutil"
	"contaminer/pkg/remote"
	"contaminer/pkg/remote/remotetest"
	"contaminer/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const display = "sh '/opt/ContaMiner/contaminer' display"

const exportJSON = `{
  "categories": [
    {
      "id": 1,
      "name": "Protein in E.Coli",
      "selected_by_default": true,
      "contaminants": [
        {
          "uniprot_id": "p0acj8",
          "short_name": "crp_ecoli",
          "long_name": "cAMP-activated global transcriptional regulator",
          "sequence": "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
          "organism": "Escherichia coli",
          "packs": [
            {"number": 1, "structure": "2-mer", "models": [
              {"template": "1o3t", "chain": "B", "domain": 1, "residues": 20, "identity": 100},
              {"template": "2gzw", "chain": "A", "residues": 13, "identity": 70}
            ]},
            {"number": 2, "structure": "domain", "models": [
              {"template": "3rou", "chain": "A", "residues": 26, "identity": 60}
            ]}
          ],
          "references": [{"pubmed_id": 27924023}, {"pubmed_id": 12345}],
          "suggestions": [{"name": "Gros chat"}, {"name": "  "}]
        }
      ]
    },
    {"id": 2, "name": "Protein in yeast", "selected_by_default": false, "contaminants": []}
  ]
}`

func newTestService(t *testing.T) (*Service, *remotetest.Fake) {
	t.Helper()
	db := testutil.NewTestDB(t, &ContaBase{}, &Category{}, &Contaminant{}, &Pack{}, &Model{}, &Reference{}, &Suggestion{})
	fake := remotetest.New()
	cluster := remote.NewClusterWith(fake, config.ClusterConfig{
		ContaminerLocation: "/opt/ContaMiner",
		WorkDirectory:      "/scratch/contaminer",
	})
	return NewService(ServiceParams{DB: db, Cluster: cluster}), fake
}

func TestSyncCreatesCurrentSnapshot(t *testing.T) {
	svc, fake := newTestService(t)
	fake.SetCommand(display, exportJSON)
	ctx := context.Background()

	cb, err := svc.Sync(ctx)
	require.NoError(t, err)
	require.False(t, cb.Obsolete)

	catalog, err := svc.Catalog(ctx)
	require.NoError(t, err)
	require.Equal(t, cb.ID, catalog.ID)
	require.Len(t, catalog.Categories, 2)

	contaminant := catalog.Categories[0].Contaminants[0]
	require.Equal(t, "P0ACJ8", contaminant.UniprotID)
	require.Equal(t, "CRP_ECOLI", contaminant.ShortName)
	require.Len(t, contaminant.Packs, 2)
	require.Equal(t, "1O3T", contaminant.Packs[0].Models[0].PDBCode)

	require.Len(t, contaminant.References, 2)
	require.Equal(t, 12345, contaminant.References[0].PubmedID)
	require.Equal(t, 27924023, contaminant.References[1].PubmedID)
	require.Len(t, contaminant.Suggestions, 1)
	require.Equal(t, "Gros chat", contaminant.Suggestions[0].Name)
}

func TestSyncMarksPreviousSnapshotObsolete(t *testing.T) {
	svc, fake := newTestService(t)
	fake.SetCommand(display, exportJSON)
	ctx := context.Background()

	first, err := svc.Sync(ctx)
	require.NoError(t, err)
	second, err := svc.Sync(ctx)
	require.NoError(t, err)

	var current int64
	require.NoError(t, svc.db.Model(&ContaBase{}).Where("obsolete = ?", false).Count(&current).Error)
	require.EqualValues(t, 1, current)

	got, err := svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.NotEqual(t, first.ID, got.ID)

	packs, err := svc.Repository().FindPacks(ctx, first.ID, "P0ACJ8", 1)
	require.NoError(t, err)
	require.Len(t, packs, 1, "obsolete snapshot keeps its packs")
}

func TestSyncRejectsInvalidExport(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	fake.SetCommand(display, exportJSON)
	before, err := svc.Sync(ctx)
	require.NoError(t, err)

	for name, out := range map[string]string{
		"not json":      "Traceback (most recent call last):",
		"empty":         `{"categories": []}`,
		"duplicate":     `{"categories": [{"id": 1, "name": "a", "contaminants": [{"uniprot_id": "P1", "sequence": "AA"}, {"uniprot_id": "p1", "sequence": "AA"}]}]}`,
		"long model":    `{"categories": [{"id": 1, "name": "a", "contaminants": [{"uniprot_id": "P1", "sequence": "AA", "packs": [{"number": 1, "structure": "1-mer", "models": [{"template": "1abc", "residues": 3, "identity": 50}]}]}]}]}`,
		"bad structure": `{"categories": [{"id": 1, "name": "a", "contaminants": [{"uniprot_id": "P1", "sequence": "AA", "packs": [{"number": 1, "structure": "blob"}]}]}]}`,
		"bad pubmed id": `{"categories": [{"id": 1, "name": "a", "contaminants": [{"uniprot_id": "P1", "sequence": "AA", "references": [{"pubmed_id": 0}]}]}]}`,
		"bad identity":  `{"categories": [{"id": 1, "name": "a", "contaminants": [{"uniprot_id": "P1", "sequence": "AA", "packs": [{"number": 1, "structure": "1-mer", "models": [{"template": "1abc", "residues": 1, "identity": 101}]}]}]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			fake.SetCommand(display, out)
			_, err := svc.Sync(ctx)
			require.ErrorIs(t, err, errutil.ErrValidationFailed)

			current, err := svc.Current(ctx)
			require.NoError(t, err)
			require.Equal(t, before.ID, current.ID)
		})
	}
}

func TestSyncPropagatesRemoteFailure(t *testing.T) {
	svc, fake := newTestService(t)
	fake.Fail(display, remotetest.ErrUnreachable)

	_, err := svc.Sync(context.Background())
	require.True(t, errutil.Retryable(err))
}

func TestCurrentOnEmptyCatalog(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Current(context.Background())
	require.True(t, errors.Is(err, errutil.ErrNotFound))
}

func TestPackCoverageAndIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	categories, err := ParseExport([]byte(exportJSON))
	require.NoError(t, err)
	cb, err := svc.Replace(ctx, categories, time.Now())
	require.NoError(t, err)

	packs, err := svc.Repository().FindPacks(ctx, cb.ID, "P0ACJ8", 1)
	require.NoError(t, err)
	require.Len(t, packs, 1)

	pack, err := svc.Repository().Pack(ctx, packs[0].ID)
	require.NoError(t, err)
	require.Equal(t, 76, pack.Coverage())
	require.Equal(t, 100, pack.Identity())
	require.Equal(t, 0, (&Pack{}).Coverage())
}

func TestContaminantsOfSnapshot(t *testing.T) {
	svc, fake := newTestService(t)
	fake.SetCommand(display, exportJSON)
	ctx := context.Background()

	_, err := svc.Sync(ctx)
	require.NoError(t, err)
	cb, err := svc.Sync(ctx)
	require.NoError(t, err)

	contaminants, err := svc.Repository().Contaminants(ctx, cb.ID)
	require.NoError(t, err)
	require.Len(t, contaminants, 1)
	require.Equal(t, "P0ACJ8 - CRP_ECOLI", contaminants[0].String())
}
