package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/jobscope/pkg/jobstatus"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, c.Version)
	require.Len(t, c.Flows, 1)

	f, ok := c.Flow("vbcdf")
	require.True(t, ok)
	assert.Equal(t, "VBCDF", f.ApplicationCode)
	require.Len(t, f.Stages, 4)
	assert.Equal(t, Stage{JobID: "7615134444", Name: "Retro Daily Attribution"}, f.Stages[0])
	assert.Equal(t, Stage{JobID: "761513677", Name: "Data Load"}, f.Stages[3])

	_, ok = c.Flow("missing")
	assert.False(t, ok)
}

func TestLoadFromBytesYAML(t *testing.T) {
	data := []byte(`
flows:
  - aplctn_cd: CLMS
    stages:
      - job_id: "8800100001"
        name: Claims Intake
status_map:
  succeeded: [FINISHED_OK]
baselines:
  "8800100001": 45
`)
	c, err := LoadFromBytes(data, "catalog.yaml")
	require.NoError(t, err)
	require.Len(t, c.Flows, 1)
	assert.Equal(t, "CLMS", c.Flows[0].Name)
	assert.Equal(t, map[string]time.Duration{"8800100001": 45 * time.Minute}, c.BaselineDurations())

	m, err := c.StatusMapping()
	require.NoError(t, err)
	assert.Equal(t, jobstatus.StatusSucceeded, m.Canonical("finished_ok"))
}

func TestLoadFromBytesJSON(t *testing.T) {
	data := []byte(`{"version":1,"flows":[{"name":"rx","aplctn_cd":"RXHUB","stages":[{"job_id":"9900200001","name":"Pull"}]}]}`)
	c, err := LoadFromBytes(data, "catalog.json")
	require.NoError(t, err)
	assert.Equal(t, "rx", c.Flows[0].Name)
	assert.Nil(t, c.BaselineDurations())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "flows: []\nextra: true\n",
		"numeric job id":   "flows:\n  - aplctn_cd: A\n    stages:\n      - job_id: 12\n        name: x\n",
		"empty stages":     "flows:\n  - aplctn_cd: A\n    stages: []\n",
		"bad status key":   "status_map:\n  DONE: [X]\n",
		"zero baseline":    "baselines:\n  \"1\": 0\n",
		"wrong version":    "version: 2\n",
		"space in job id":  "flows:\n  - aplctn_cd: A\n    stages:\n      - job_id: \"a b\"\n        name: x\n",
		"missing stage nm": "flows:\n  - aplctn_cd: A\n    stages:\n      - job_id: \"1\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(doc), "catalog.yaml")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestLoadRejectsDuplicateFlowsAndConflicts(t *testing.T) {
	doc := `
flows:
  - aplctn_cd: A
    stages: [{job_id: "1", name: one}]
  - name: a
    aplctn_cd: B
    stages: [{job_id: "2", name: two}]
status_map:
  RUNNING: [COMPLETED]
`
	_, err := LoadFromBytes([]byte(doc), "catalog.yml")
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 2)
	assert.Equal(t, "/flows/1/name", verrs[0].Path)
	assert.Equal(t, "/status_map", verrs[1].Path)
}

func TestLoadEmpty(t *testing.T) {
	_, err := LoadFromBytes([]byte("  \n"), "catalog.yaml")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(p, []byte("flows: []\n"), 0o600))

	c, err := Load(p)
	require.NoError(t, err)
	assert.Empty(t, c.Flows)

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchLocalAndDefault(t *testing.T) {
	c, err := Fetch(context.Background(), "", S3Options{})
	require.NoError(t, err)
	assert.Len(t, c.Flows, 1)

	_, err = Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), S3Options{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://ops-config/jobscope/catalog.yaml")
	require.NoError(t, err)
	assert.Equal(t, "ops-config", bucket)
	assert.Equal(t, "jobscope/catalog.yaml", key)

	for _, bad := range []string{"s3://bucket", "s3://bucket/dir/", "s3:///key", "https://bucket/key"} {
		_, _, err := ParseS3URI(bad)
		assert.Error(t, err, bad)
	}
}

type mockAPIError struct {
	code string
}

func (e *mockAPIError) Error() string                 { return e.code }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.code }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

var _ smithy.APIError = (*mockAPIError)(nil)

type fakeGetter struct {
	body []byte
	err  error

	gotBucket, gotKey string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotBucket, f.gotKey = *in.Bucket, *in.Key
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func TestFetchS3(t *testing.T) {
	ctx := context.Background()

	t.Run("reads and validates", func(t *testing.T) {
		g := &fakeGetter{body: []byte(`{"flows":[{"aplctn_cd":"A","stages":[{"job_id":"1","name":"one"}]}]}`)}
		c, err := FetchS3(ctx, g, "ops", "jobscope/catalog.json")
		require.NoError(t, err)
		assert.Equal(t, "ops", g.gotBucket)
		assert.Equal(t, "jobscope/catalog.json", g.gotKey)
		assert.Len(t, c.Flows, 1)
	})

	t.Run("missing key is not found", func(t *testing.T) {
		_, err := FetchS3(ctx, &fakeGetter{err: &mockAPIError{code: "NoSuchKey"}}, "ops", "c.yaml")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("access denied surfaces code", func(t *testing.T) {
		_, err := FetchS3(ctx, &fakeGetter{err: &mockAPIError{code: "AccessDenied"}}, "ops", "c.yaml")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "AccessDenied")
	})

	t.Run("oversized", func(t *testing.T) {
		big := bytes.Repeat([]byte("#"), MaxRemoteSize+10)
		_, err := FetchS3(ctx, &fakeGetter{body: big}, "ops", "c.yaml")
		assert.Error(t, err)
	})
}
