package output

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentalpipeline/basiccleaning/internal/artifact"
	"github.com/rentalpipeline/basiccleaning/internal/dataset"
	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
)

type fakePublisher struct {
	published  []artifact.Artifact
	content    string
	awaited    int
	publishErr error
	awaitErr   error
}

func (f *fakePublisher) Publish(_ context.Context, a artifact.Artifact) (*artifact.Handle, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	b, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, err
	}
	f.content = string(b)
	f.published = append(f.published, a)
	return &artifact.Handle{VersionID: 1, Name: a.Name, Version: 1, Size: int64(len(b))}, nil
}

func (f *fakePublisher) AwaitDurable(_ context.Context, _ *artifact.Handle) error {
	f.awaited++
	return f.awaitErr
}

func testConfig(t *testing.T) ArtifactCSVConfig {
	return ArtifactCSVConfig{
		Name:        "clean_sample.csv",
		Type:        "clean_sample",
		Description: "Data with outliers and null values removed",
		WorkDir:     filepath.Join(t.TempDir(), "work"),
	}
}

func sampleDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader("id,price\n1,50\n2,70\n"))
	require.NoError(t, err)
	return ds
}

func TestArtifactCSV_Send(t *testing.T) {
	pub := &fakePublisher{}
	cfg := testConfig(t)
	m, err := NewArtifactCSV(pub, cfg)
	require.NoError(t, err)

	n, err := m.Send(context.Background(), sampleDataset(t))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.published, 1)
	assert.Equal(t, artifact.Artifact{
		Name:        cfg.Name,
		Type:        cfg.Type,
		Description: cfg.Description,
		Path:        filepath.Join(cfg.WorkDir, OutputFileName),
	}, pub.published[0])
	assert.Equal(t, "id,price\n1,50\n2,70\n", pub.content)
	assert.Equal(t, 1, pub.awaited)
	require.NotNil(t, m.Published())
	assert.Equal(t, "clean_sample.csv:v1", m.Published().String())
}

func TestArtifactCSV_SendHeaderOnly(t *testing.T) {
	pub := &fakePublisher{}
	m, err := NewArtifactCSV(pub, testConfig(t))
	require.NoError(t, err)

	n, err := m.Send(context.Background(), dataset.New([]string{"id", "price"}))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "id,price\n", pub.content)
}

func TestArtifactCSV_SendErrors(t *testing.T) {
	tests := []struct {
		name string
		pub  *fakePublisher
		code string
	}{
		{"publish fails", &fakePublisher{publishErr: errors.New("denied")}, errhandling.CodeUploadFailed},
		{"durability unconfirmed", &fakePublisher{awaitErr: artifact.ErrDurabilityTimeout}, errhandling.CodeDurabilityUnconfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewArtifactCSV(tt.pub, testConfig(t))
			require.NoError(t, err)

			_, err = m.Send(context.Background(), sampleDataset(t))
			require.Error(t, err)
			assert.True(t, errhandling.IsCategory(err, errhandling.CategoryUpload))
			assert.Equal(t, tt.code, errhandling.GetErrorCode(err))
			assert.Nil(t, m.Published())
		})
	}
}

func TestArtifactCSV_SendWriteFailure(t *testing.T) {
	cfg := testConfig(t)
	// A regular file where the work directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(cfg.WorkDir), "work"), []byte("x"), 0o644))

	m, err := NewArtifactCSV(&fakePublisher{}, cfg)
	require.NoError(t, err)
	_, err = m.Send(context.Background(), sampleDataset(t))
	assert.Equal(t, errhandling.CodeWriteFailed, errhandling.GetErrorCode(err))
}

func TestNewArtifactCSV_Validates(t *testing.T) {
	_, err := NewArtifactCSV(nil, testConfig(t))
	require.Error(t, err)

	for _, mutate := range []func(*ArtifactCSVConfig){
		func(c *ArtifactCSVConfig) { c.Name = "" },
		func(c *ArtifactCSVConfig) { c.Type = "" },
		func(c *ArtifactCSVConfig) { c.Description = "" },
	} {
		cfg := testConfig(t)
		mutate(&cfg)
		_, err := NewArtifactCSV(&fakePublisher{}, cfg)
		assert.True(t, errhandling.IsCategory(err, errhandling.CategoryArgument))
	}
}
