package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arka-labs/academy-api/internal/models"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
	"github.com/arka-labs/academy-api/pkg/export"
	"github.com/arka-labs/academy-api/pkg/storage"
)

// Export formats accepted by the report endpoints.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

type exportStudentReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type exportAttendanceReader interface {
	ListByStudent(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
}

type exportScoreReader interface {
	ListByMock(ctx context.Context, mockID string) ([]models.MockScore, error)
}

// ExportResult describes a rendered report and its signed download token.
type ExportResult struct {
	ReportID  string    `json:"report_id"`
	FileName  string    `json:"file_name"`
	Format    string    `json:"format"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders attendance and mock result reports to files and
// hands out time-limited signed download tokens.
type ExportService struct {
	students   exportStudentReader
	attendance exportAttendanceReader
	scores     exportScoreReader
	batches    studentBatchReader
	mocks      progressMockReader
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	store      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(
	students exportStudentReader,
	attendance exportAttendanceReader,
	scores exportScoreReader,
	batches studentBatchReader,
	mocks progressMockReader,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		students:   students,
		attendance: attendance,
		scores:     scores,
		batches:    batches,
		mocks:      mocks,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		store:      store,
		signer:     signer,
		logger:     logger,
	}
}

// BatchAttendanceReport renders every attendance record of a batch's
// students into a downloadable file.
func (s *ExportService) BatchAttendanceReport(ctx context.Context, batchID, format string) (*ExportResult, error) {
	if format != FormatCSV && format != FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	students, _, err := s.students.List(ctx, models.StudentFilter{BatchID: batchID, PageSize: 200})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch students")
	}

	dataset := export.Dataset{
		Headers: []string{"Roll Number", "Student", "Date", "Present"},
	}
	for _, student := range students {
		records, err := s.attendance.ListByStudent(ctx, student.ID, models.AttendanceFilter{})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
		}
		for _, rec := range records {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Roll Number": student.RollNumber,
				"Student":     student.FullName,
				"Date":        rec.Date.Format(dateLayout),
				"Present":     strconv.FormatBool(rec.Present),
			})
		}
	}

	title := fmt.Sprintf("Attendance - %s", batch.Name)
	return s.render(dataset, title, format, "attendance")
}

// MockResultsReport renders every score entry of a mock test.
func (s *ExportService) MockResultsReport(ctx context.Context, mockID, format string) (*ExportResult, error) {
	if format != FormatCSV && format != FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	test, err := s.mocks.FindByID(ctx, mockID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "mock test not found")
	}
	entries, err := s.scores.ListByMock(ctx, mockID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scores")
	}

	dataset := export.Dataset{
		Headers: []string{"Roll Number", "Student", "Outcome", "Score", "Test Date"},
	}
	for _, entry := range entries {
		roll, name := entry.StudentID, ""
		if student, err := s.students.FindByID(ctx, entry.StudentID); err == nil {
			roll, name = student.RollNumber, student.FullName
		}
		outcome := entry.Outcome()
		score := ""
		if outcome.Kind == models.OutcomeScored {
			score = strconv.Itoa(outcome.Score)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Roll Number": roll,
			"Student":     name,
			"Outcome":     string(outcome.Kind),
			"Score":       score,
			"Test Date":   entry.TestDate.Format(dateLayout),
		})
	}

	title := fmt.Sprintf("Results - %s", test.Name)
	return s.render(dataset, title, format, "results")
}

// Download resolves a signed token to the stored report file.
func (s *ExportService) Download(token string) (*os.File, string, error) {
	reportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		s.logger.Warn("report file missing", zap.String("report_id", reportID), zap.Error(err))
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report no longer available")
	}
	return file, relPath, nil
}

func (s *ExportService) render(dataset export.Dataset, title, format, kind string) (*ExportResult, error) {
	var payload []byte
	var err error
	switch format {
	case FormatCSV:
		payload, err = s.csv.Render(dataset)
	case FormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	reportID := uuid.NewString()
	fileName := fmt.Sprintf("%s/%s.%s", kind, reportID, format)
	if _, err := s.store.Save(fileName, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report")
	}
	token, expiresAt, err := s.signer.Generate(reportID, fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	s.logger.Info("report exported",
		zap.String("report_id", reportID),
		zap.String("file", fileName),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		ReportID:  reportID,
		FileName:  fileName,
		Format:    format,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
