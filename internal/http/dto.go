package http

import (
	"time"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/worker"
)

type loanDTO struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	BookID     string     `json:"bookId"`
	BorrowedAt time.Time  `json:"borrowedAt"`
	DueDate    string     `json:"dueDate"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
	Status     string     `json:"status"`
}

func toLoanDTO(loan application.Loan) loanDTO {
	return loanDTO{
		ID:         loan.ID,
		UserID:     loan.UserID,
		BookID:     loan.BookID,
		BorrowedAt: loan.BorrowedAt,
		DueDate:    loan.DueDate.Format(time.DateOnly),
		ReturnedAt: loan.ReturnedAt,
		Status:     loan.Status,
	}
}

type returnDTO struct {
	Loan            loanDTO `json:"loan"`
	AlreadyReturned bool    `json:"alreadyReturned"`
}

type jobDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

func toJobDTO(job worker.Job) jobDTO {
	return jobDTO{
		ID:          job.ID,
		Name:        job.Name,
		Status:      string(job.Status),
		Result:      job.Result,
		Error:       job.Error,
		SubmittedAt: job.SubmittedAt,
		StartedAt:   timeRef(job.StartedAt),
		FinishedAt:  timeRef(job.FinishedAt),
	}
}

type acceptedDTO struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type auditDTO struct {
	ID             string         `json:"id"`
	RecipientEmail string         `json:"recipientEmail"`
	RecipientName  string         `json:"recipientName"`
	Kind           string         `json:"kind"`
	Status         string         `json:"status"`
	Subject        string         `json:"subject"`
	ErrorMessage   *string        `json:"errorMessage,omitempty"`
	Attempts       int            `json:"attempts"`
	LoanID         *string        `json:"loanId,omitempty"`
	CorrelationID  *string        `json:"correlationId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	SentAt         time.Time      `json:"sentAt"`
}

func toAuditDTO(e application.AuditEntry) auditDTO {
	return auditDTO{
		ID:             e.ID,
		RecipientEmail: e.RecipientEmail,
		RecipientName:  e.RecipientName,
		Kind:           e.Kind,
		Status:         e.Status,
		Subject:        e.Subject,
		ErrorMessage:   e.ErrorMessage,
		Attempts:       e.Attempts,
		LoanID:         e.LoanID,
		CorrelationID:  e.CorrelationID,
		Metadata:       e.Metadata,
		SentAt:         e.SentAt,
	}
}

type batchReportDTO struct {
	CorrelationID  string               `json:"correlationId"`
	ProcessedCount int                  `json:"processedCount"`
	SentCount      int                  `json:"sentCount"`
	FailedCount    int                  `json:"failedCount"`
	SkippedCount   int                  `json:"skippedCount"`
	Details        []application.Detail `json:"details"`
}

func toBatchReportDTO(r application.BatchReport) batchReportDTO {
	details := r.Details
	if details == nil {
		details = []application.Detail{}
	}
	return batchReportDTO{
		CorrelationID:  r.CorrelationID,
		ProcessedCount: r.Processed,
		SentCount:      r.Sent,
		FailedCount:    r.Failed,
		SkippedCount:   r.Skipped,
		Details:        details,
	}
}

func timeRef(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
