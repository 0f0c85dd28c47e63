package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentriagem/triagem/pkg/extract"
	"github.com/opentriagem/triagem/pkg/llm"
	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// Dead-letter causes raised by the intake pipeline.
const (
	CausePDFDownload      = "pdf_download_failed"
	CausePDFExtract       = "pdf_extract_failed"
	CauseRecordExtraction = "record_extraction_failed"
	CauseLLM1             = "llm1_failed"
	CauseLLM2             = "llm2_failed"
)

// ProcessPDFService runs the extraction and LLM stages of a fresh case. The
// handler is re-entrant: each stage is guarded by the case status, so a
// redelivered job resumes where the previous attempt stopped.
type ProcessPDFService struct {
	repos       *repo.Repos
	media       matrix.MediaDownloader
	pdf         extract.PDFTextExtractor
	agency      extract.AgencyRecordExtractor
	stages      *llm.Stages
	llm2Enabled bool
	logger      *slog.Logger
}

func NewProcessPDFService(repos *repo.Repos, media matrix.MediaDownloader, pdf extract.PDFTextExtractor,
	agency extract.AgencyRecordExtractor, stages *llm.Stages, llm2Enabled bool, logger *slog.Logger) *ProcessPDFService {
	return &ProcessPDFService{
		repos:       repos,
		media:       media,
		pdf:         pdf,
		agency:      agency,
		stages:      stages,
		llm2Enabled: llm2Enabled,
		logger:      logger.With("component", "process_pdf"),
	}
}

// Handle processes one claimed process_pdf_case job.
func (s *ProcessPDFService) Handle(ctx context.Context, job *models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("process_pdf_case job %d has no case", job.JobID)
	}
	var payload models.ProcessPDFPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode process_pdf_case payload: %w", err)
	}

	c, err := s.repos.Cases.Get(ctx, *job.CaseID)
	if err != nil {
		return err
	}
	log := s.logger.With("case_id", c.CaseID, "job_id", job.JobID)

	if c.Status == models.StatusR1AckProcessing {
		applied, err := s.repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusR1AckProcessing, models.StatusExtracting)
		if err != nil {
			return err
		}
		if applied {
			if err := s.auditStatus(ctx, c.CaseID, models.StatusR1AckProcessing, models.StatusExtracting); err != nil {
				return err
			}
			c.Status = models.StatusExtracting
		} else {
			// Lost a race with a duplicate delivery; reload and continue.
			if c, err = s.repos.Cases.Get(ctx, c.CaseID); err != nil {
				return err
			}
		}
	}

	if c.Status == models.StatusExtracting {
		if err := s.runExtraction(ctx, c, payload.PDFMXCURL); err != nil {
			return err
		}
		c.Status = models.StatusLLMStruct
		if c, err = s.repos.Cases.Get(ctx, c.CaseID); err != nil {
			return err
		}
	}

	if c.Status == models.StatusLLMStruct {
		if err := s.runStructure(ctx, c); err != nil {
			return err
		}
		if c, err = s.repos.Cases.Get(ctx, c.CaseID); err != nil {
			return err
		}
	}

	if c.Status == models.StatusLLMSuggest {
		if c.SuggestedActionJSON == nil {
			if err := s.runSuggest(ctx, c); err != nil {
				return err
			}
		}
		if _, err := s.repos.Jobs.Enqueue(ctx, &c.CaseID, models.JobTypePostRoom2Widget, nil, time.Now()); err != nil {
			return err
		}
		log.Info("intake pipeline finished, widget job enqueued")
		return nil
	}

	// Any other status means a stale delivery after the case moved on.
	log.Info("stale process_pdf_case delivery ignored", "status", c.Status)
	return nil
}

func (s *ProcessPDFService) runExtraction(ctx context.Context, c *models.Case, mxcURL string) error {
	pdfBytes, err := s.media.DownloadMXC(ctx, mxcURL)
	if err != nil {
		return Retriable(CausePDFDownload, "could not download the referral PDF", err)
	}
	rawText, err := s.pdf.ExtractText(ctx, pdfBytes)
	if err != nil {
		return Retriable(CausePDFExtract, "could not extract text from the referral PDF", err)
	}
	cleaned, record, err := s.agency.ExtractRecord(rawText)
	if err != nil {
		return Retriable(CauseRecordExtraction, "referral has no recognizable agency record number", err)
	}

	applied, err := s.repos.Cases.SaveExtraction(ctx, c.CaseID, cleaned, record)
	if err != nil {
		return err
	}
	if !applied {
		return nil // concurrent delivery already persisted it
	}
	if err := s.repos.Transcripts.AppendReport(ctx, c.CaseID, cleaned); err != nil {
		return err
	}
	if err := systemAudit(c.CaseID, models.EventPDFExtracted).
		withPayload(map[string]string{"agency_record_number": record}).
		append(ctx, s.repos.Events); err != nil {
		return err
	}
	return s.auditStatus(ctx, c.CaseID, models.StatusExtracting, models.StatusLLMStruct)
}

func (s *ProcessPDFService) runStructure(ctx context.Context, c *models.Case) error {
	if c.ExtractedText == nil || c.AgencyRecordNumber == nil {
		return fmt.Errorf("case %s in LLM_STRUCT without extraction artifacts", c.CaseID)
	}
	result, interaction, err := s.stages.Structure(ctx, c.CaseID, *c.AgencyRecordNumber, *c.ExtractedText)
	if err != nil {
		return Retriable(CauseLLM1, "structuring stage failed", err)
	}

	applied, err := s.repos.Cases.SaveStructuredResult(ctx, c.CaseID, result.RawJSON, result.Structured.Summary)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if err := s.repos.Transcripts.AppendLLMInteraction(ctx, interaction); err != nil {
		return err
	}
	if err := systemAudit(c.CaseID, models.EventLLM1StructuredSummaryOK).
		withPayload(result.Structured.Precheck).
		append(ctx, s.repos.Events); err != nil {
		return err
	}

	applied, err = s.repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusLLMStruct, models.StatusLLMSuggest)
	if err != nil {
		return err
	}
	if applied {
		return s.auditStatus(ctx, c.CaseID, models.StatusLLMStruct, models.StatusLLMSuggest)
	}
	return nil
}

func (s *ProcessPDFService) runSuggest(ctx context.Context, c *models.Case) error {
	if c.StructuredDataJSON == nil {
		return fmt.Errorf("case %s in LLM_SUGGEST without structured data", c.CaseID)
	}
	var structured llm.Structured
	if err := json.Unmarshal([]byte(*c.StructuredDataJSON), &structured); err != nil {
		return fmt.Errorf("decode structured data of case %s: %w", c.CaseID, err)
	}

	var suggestion llm.Suggestion
	var contradictions []llm.Contradiction
	if s.llm2Enabled {
		summary := ""
		if c.SummaryText != nil {
			summary = *c.SummaryText
		}
		result, interaction, err := s.stages.Suggest(ctx, c.CaseID, *c.StructuredDataJSON, summary, structured.Precheck)
		if err != nil {
			return Retriable(CauseLLM2, "suggestion stage failed", err)
		}
		if err := s.repos.Transcripts.AppendLLMInteraction(ctx, interaction); err != nil {
			return err
		}
		suggestion, contradictions = result.Suggestion, result.Contradictions
	} else {
		suggestion, contradictions = llm.DefaultSuggestion(structured.Precheck)
	}

	applied, err := s.repos.Cases.SaveSuggestedAction(ctx, c.CaseID,
		string(mustJSON(suggestion)), string(mustJSON(contradictions)))
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if err := systemAudit(c.CaseID, models.EventLLM2SuggestionOK).
		withPayload(suggestion).
		append(ctx, s.repos.Events); err != nil {
		return err
	}
	if len(contradictions) > 0 {
		if err := systemAudit(c.CaseID, models.EventLLMContradictionDetected).
			withPayload(contradictions).
			append(ctx, s.repos.Events); err != nil {
			return err
		}
	}
	return nil
}

func (s *ProcessPDFService) auditStatus(ctx context.Context, caseID string, from, to models.Status) error {
	return systemAudit(caseID, models.EventCaseStatusChanged).
		withPayload(map[string]string{"from": string(from), "to": string(to)}).
		append(ctx, s.repos.Events)
}
