package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openuni/registrar-api/internal/models"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
)

type mockTranscriptRowReader struct {
	rows  map[string][]models.TranscriptRow
	calls int
}

func (m *mockTranscriptRowReader) TranscriptRows(_ context.Context, studentID string) ([]models.TranscriptRow, error) {
	m.calls++
	return m.rows[studentID], nil
}

type mockTranscriptCache struct {
	entries map[string]*models.Transcript
	sets    map[string]time.Duration
}

func (m *mockTranscriptCache) Get(_ context.Context, key string, dest interface{}) error {
	cached, ok := m.entries[key]
	if !ok {
		return appErrors.Clone(appErrors.ErrCacheMiss, "")
	}
	*dest.(*models.Transcript) = *cached
	return nil
}

func (m *mockTranscriptCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = map[string]*models.Transcript{}
	}
	if m.sets == nil {
		m.sets = map[string]time.Duration{}
	}
	transcript := value.(*models.Transcript)
	m.entries[key] = transcript
	m.sets[key] = ttl
	return nil
}

func transcriptFixture() (*mockTranscriptRowReader, *mockStudentReader, *mockTranscriptCache) {
	completed := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	gradeA := models.GradeA
	gradeW := models.GradeWithdrawal
	rows := &mockTranscriptRowReader{rows: map[string][]models.TranscriptRow{
		"student-1": {
			{CourseCode: "CS101", CourseTitle: "Intro to Computing", TermName: "Fall 2025", Credits: 4, Grade: &gradeA, CompletedAt: &completed},
			{CourseCode: "MA201", CourseTitle: "Linear Algebra", TermName: "Fall 2025", Credits: 3, Grade: &gradeW, CompletedAt: &completed},
		},
	}}
	students := &mockStudentReader{students: map[string]*models.Student{
		"student-1": {ID: "student-1", StudentNo: "S-001", FullName: "Ada Byron", Status: models.StudentStatusActive, GPA: 3.57},
	}}
	return rows, students, &mockTranscriptCache{}
}

func TestTranscriptServiceGet(t *testing.T) {
	rows, students, cache := transcriptFixture()
	svc := NewTranscriptService(rows, students, cache, time.Minute, nil)

	transcript, err := svc.Get(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, "S-001", transcript.StudentNo)
	assert.Equal(t, 3.57, transcript.GPA)
	assert.Len(t, transcript.Rows, 2)
	assert.False(t, transcript.GeneratedAt.IsZero())

	// the assembled transcript lands in the cache under the student key
	assert.Contains(t, cache.entries, "transcript:student-1:full")
	assert.Equal(t, time.Minute, cache.sets["transcript:student-1:full"])
}

func TestTranscriptServiceGetServesFromCache(t *testing.T) {
	rows, students, cache := transcriptFixture()
	cache.entries = map[string]*models.Transcript{
		"transcript:student-1:full": {StudentID: "student-1", StudentNo: "S-001", GPA: 3.57},
	}
	svc := NewTranscriptService(rows, students, cache, time.Minute, nil)

	transcript, err := svc.Get(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, "S-001", transcript.StudentNo)
	assert.Zero(t, rows.calls)
}

func TestTranscriptServiceGetUnknownStudent(t *testing.T) {
	rows, students, cache := transcriptFixture()
	svc := NewTranscriptService(rows, students, cache, time.Minute, nil)

	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestTranscriptServiceExportCSV(t *testing.T) {
	rows, students, cache := transcriptFixture()
	svc := NewTranscriptService(rows, students, cache, time.Minute, nil)

	data, err := svc.ExportCSV(context.Background(), "student-1")
	require.NoError(t, err)
	csv := string(data)
	assert.True(t, strings.HasPrefix(csv, "Course,Title,Term,Credits,Grade,Completed"))
	assert.Contains(t, csv, "CS101,Intro to Computing,Fall 2025,4,A,2026-05-20")
	assert.Contains(t, csv, "MA201,Linear Algebra,Fall 2025,3,W,2026-05-20")
	assert.Contains(t, csv, "Cumulative GPA: 3.57")
}

func TestTranscriptServiceExportPDF(t *testing.T) {
	rows, students, cache := transcriptFixture()
	svc := NewTranscriptService(rows, students, cache, time.Minute, nil)

	data, err := svc.ExportPDF(context.Background(), "student-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}
