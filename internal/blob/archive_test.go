package blob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/exceptions"
)

func TestArchiveWritesBundleUnderSubmissionPrefix(t *testing.T) {
	store := NewMemory()
	a := NewArchiver(store)
	a.newID = func() string { return "0f8c" }
	a.now = func() time.Time { return time.Date(2021, 4, 23, 0, 0, 0, 0, time.UTC) }

	report := exceptions.Report{Errors: 1, Entries: []exceptions.Entry{{Class: "MissingSampleError", Message: "missing"}}}
	r, err := a.Archive(context.Background(), Bundle{
		Study:           "Obesity",
		Operation:       "validate",
		StudyDoc:        File{Path: "uploads/study.xlsx", Data: []byte("doc")},
		AnnotationFiles: []File{{Path: "neg/iso.xlsx", Data: []byte("iso")}},
		Report:          report,
	})
	require.NoError(t, err)
	assert.Equal(t, "submissions/0f8c/", r.Prefix)
	assert.Equal(t, []string{
		"submissions/0f8c/study/study.xlsx",
		"submissions/0f8c/files/neg/iso.xlsx",
		"submissions/0f8c/report.json",
	}, r.Keys)

	info, err := store.Head(context.Background(), "submissions/0f8c/files/neg/iso.xlsx")
	require.NoError(t, err)
	assert.Equal(t, xlsxType, info.ContentType)
	assert.Equal(t, "Obesity", info.Metadata["study"])

	back, err := a.Report(context.Background(), "0f8c")
	require.NoError(t, err)
	assert.Equal(t, 1, back.Errors)
	assert.Equal(t, "MissingSampleError", back.Entries[0].Class)
}

func TestArchiveFailsOnReusedID(t *testing.T) {
	a := NewArchiver(NewMemory())
	a.newID = func() string { return "same" }
	_, err := a.Archive(context.Background(), Bundle{})
	require.NoError(t, err)
	_, err = a.Archive(context.Background(), Bundle{})
	assert.ErrorIs(t, err, ErrExists)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	assert.Error(t, err, "bucket is required")

	_, err = Open(ctx, Config{Driver: "gcs"})
	assert.Error(t, err)
}
