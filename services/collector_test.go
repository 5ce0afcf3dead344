package services

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trial-scout/models"
	"trial-scout/storage"
)

type stubClassification struct {
	nodes map[int][]int
}

func (s *stubClassification) CIDsForNode(ctx context.Context, hnid int) ([]int, error) {
	return s.nodes[hnid], nil
}

type stubCompounds struct {
	props map[int]models.Compound
	syns  map[int][]string
}

func (s *stubCompounds) CompoundProperties(ctx context.Context, cid int) (models.Compound, error) {
	if c, ok := s.props[cid]; ok {
		return c, nil
	}
	return models.Compound{CID: cid}, nil
}

func (s *stubCompounds) Synonyms(ctx context.Context, cid int, maxItems int) ([]string, error) {
	return s.syns[cid], nil
}

func (s *stubCompounds) CIDsByName(ctx context.Context, name string) ([]int, error) {
	return nil, nil
}

func newTestCollector(class *stubClassification, display *stubDisplaySource, web *stubWebSource, reg *stubRegistry) *Collector {
	resolver := NewResolver(display, web, zap.NewNop())
	return &Collector{
		Classification: class,
		Compounds:      &stubCompounds{props: map[int]models.Compound{
			2244: {CID: 2244, InChIKey: "BSYNRYMUTXBXSQ-UHFFFAOYSA-N", CanonicalSMILES: "CC(=O)OC1=CC=CC=C1C(=O)O", IUPACName: "2-acetyloxybenzoic acid"},
		}},
		Registry: reg,
		Resolver: resolver,
		Linker:   NewCompoundTrialLinker(reg, zap.NewNop()),
		Logger:   zap.NewNop(),
	}
}

func TestCollectorRunStreamsArtifacts(t *testing.T) {
	class := &stubClassification{nodes: map[int][]int{
		100: {2244, 3672},
		200: {3672, 5090},
	}}
	display := &stubDisplaySource{record: map[string]any{}}
	web := &stubWebSource{}
	reg := &stubRegistry{byNCT: map[string]map[string]any{
		"NCT01561508": studyDoc("NCT01561508", "Aspirin Trial"),
	}}
	collector := newTestCollector(class, display, web, reg)
	// Nur CID 2244 löst in eine Trial-ID auf.
	collector.Resolver.Web = &stubWebSource{payloads: map[string]map[string]any{
		"clinicaltrials": sdqPayloadWithIDs("NCT01561508"),
	}}

	outDir := t.TempDir()
	res, err := collector.Run(context.Background(), CollectorConfig{
		HNIDs:  []int{100, 200},
		OutDir: outDir,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.CIDCount)
	assert.Equal(t, 3, res.NCTTotalMapped)
	// Das Dokument wird einmal geholt und pro referenzierender CID emittiert.
	assert.Equal(t, 1, res.NCTRequested)
	assert.Equal(t, 1, res.NCTFetched)
	assert.Equal(t, 1, res.NCTUniqueSeen)

	cidsTxt, err := os.ReadFile(filepath.Join(outDir, "cids.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2244\n3672\n5090\n", string(cidsTxt))

	cidRows, err := storage.ReadJSONL(filepath.Join(outDir, "cids.jsonl"))
	require.NoError(t, err)
	require.Len(t, cidRows, 3)
	assert.Equal(t, []any{float64(100), float64(200)}, cidRows[1]["source_hnids"])

	linkRows, err := storage.ReadJSONL(filepath.Join(outDir, "cid_nct_links.jsonl"))
	require.NoError(t, err)
	require.Len(t, linkRows, 3)
	assert.Equal(t, float64(1), linkRows[0]["n_nct"])
	assert.Equal(t, SourceSDQClinicalTrials, linkRows[0]["source"])

	studyRows, err := storage.ReadJSONL(filepath.Join(outDir, "studies.jsonl"))
	require.NoError(t, err)
	require.Len(t, studyRows, 3)
	for i, row := range studyRows {
		assert.NotNil(t, row["cid"], "study row %d must carry its cid", i)
	}
}

func TestCollectorRunWritesMapCSV(t *testing.T) {
	class := &stubClassification{nodes: map[int][]int{100: {2244}}}
	display := &stubDisplaySource{record: recordWithTrialURL("NCT01561508")}
	reg := &stubRegistry{byNCT: map[string]map[string]any{
		"NCT01561508": studyDoc("NCT01561508", "Aspirin Trial"),
	}}
	collector := newTestCollector(class, display, &stubWebSource{}, reg)

	outDir := t.TempDir()
	_, err := collector.Run(context.Background(), CollectorConfig{HNIDs: []int{100}, OutDir: outDir})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(outDir, "cid_nct_map.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, []string{"cid", "nct_id"}, records[0])
	assert.Equal(t, []string{"2244", "NCT01561508"}, records[1])
}

func TestCollectorRunHonorsFetchLimit(t *testing.T) {
	class := &stubClassification{nodes: map[int][]int{100: {2244}}}
	display := &stubDisplaySource{record: map[string]any{}}
	web := &stubWebSource{payloads: map[string]map[string]any{
		"clinicaltrials": sdqPayloadWithIDs("NCT00000001", "NCT00000002", "NCT00000003"),
	}}
	reg := &stubRegistry{byNCT: map[string]map[string]any{
		"NCT00000001": studyDoc("NCT00000001", "A"),
		"NCT00000002": studyDoc("NCT00000002", "B"),
		"NCT00000003": studyDoc("NCT00000003", "C"),
	}}
	collector := newTestCollector(class, display, web, reg)

	outDir := t.TempDir()
	res, err := collector.Run(context.Background(), CollectorConfig{
		HNIDs:     []int{100},
		OutDir:    outDir,
		LimitNCTs: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.NCTRequested)
	assert.Equal(t, 2, res.NCTFetched)
	assert.Len(t, reg.getCalls, 2)
}

func TestCollectorRunResumeSkipsProcessedCIDs(t *testing.T) {
	class := &stubClassification{nodes: map[int][]int{100: {2244}}}
	display := &stubDisplaySource{record: recordWithTrialURL("NCT01561508")}
	reg := &stubRegistry{byNCT: map[string]map[string]any{
		"NCT01561508": studyDoc("NCT01561508", "Aspirin Trial"),
	}}
	collector := newTestCollector(class, display, &stubWebSource{}, reg)

	outDir := t.TempDir()
	cfg := CollectorConfig{HNIDs: []int{100}, OutDir: outDir, Resume: true}

	first, err := collector.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, first.NCTFetched)

	second, err := collector.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Zero(t, second.NCTRequested)
	assert.Zero(t, second.NCTFetched)
	assert.Equal(t, 1, second.NCTExistingBeforeResume)
	// Der zweite Lauf darf keine neuen Zeilen anhängen.
	linkRows, err := storage.ReadJSONL(filepath.Join(outDir, "cid_nct_links.jsonl"))
	require.NoError(t, err)
	assert.Len(t, linkRows, 1)
}

func TestMapCIDRecordCapturesErrorsWithoutFailFast(t *testing.T) {
	display := &stubDisplaySource{recordErr: assert.AnError}
	web := &stubWebSource{
		sdqErr: map[string]error{
			"clinicaltrials":    assert.AnError,
			"clinicaltrials_eu": assert.AnError,
			"clinicaltrials_jp": assert.AnError,
		},
		htmlErr: assert.AnError,
	}
	reg := &stubRegistry{}
	collector := newTestCollector(&stubClassification{}, display, web, reg)

	link, compound, err := collector.MapCIDRecord(context.Background(), 2244, false, false)
	require.NoError(t, err)

	assert.Empty(t, link.NCTIDs)
	assert.Equal(t, SourceNone, link.Source)
	assert.Contains(t, link.Error, "pug_view_error:")
	require.NotNil(t, compound)
	assert.Equal(t, 2244, compound.CID)
}

func TestMapCIDRecordFailFastPropagates(t *testing.T) {
	display := &stubDisplaySource{recordErr: assert.AnError}
	collector := newTestCollector(&stubClassification{}, display, &stubWebSource{}, &stubRegistry{})

	_, _, err := collector.MapCIDRecord(context.Background(), 2244, false, true)
	require.Error(t, err)
}

func TestMapCIDRecordLinkerFallback(t *testing.T) {
	display := &stubDisplaySource{record: map[string]any{}}
	reg := &stubRegistry{studies: []map[string]any{
		studyDoc("NCT00000042", "Aspirin Prevention Study"),
	}}
	collector := newTestCollector(&stubClassification{}, display, &stubWebSource{}, reg)
	collector.Compounds = &stubCompounds{
		props: map[int]models.Compound{2244: {CID: 2244, IUPACName: "2-acetyloxybenzoic acid"}},
		syns:  map[int][]string{2244: {"aspirin"}},
	}

	link, compound, err := collector.MapCIDRecord(context.Background(), 2244, true, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"NCT00000042"}, link.NCTIDs)
	assert.Equal(t, SourceLinkerFallback, link.Source)
	require.NotNil(t, compound)
	assert.Equal(t, []string{"aspirin"}, compound.Synonyms)
}
