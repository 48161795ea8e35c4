package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"recap/internal/audit"
	"recap/internal/fileutil"
	"recap/internal/media"
	"recap/internal/services"
	"recap/internal/transcript"
)

// Outputs lists the files written for one source.
type Outputs struct {
	Transcript     string `json:"transcript"`
	TranscriptJSON string `json:"transcript_json"`
	Report         string `json:"report,omitempty"`
	ReportJSON     string `json:"report_json,omitempty"`
}

// OutputPaths returns the output locations for source under dir.
func OutputPaths(dir, source string) Outputs {
	stem := media.Stem(source)
	return Outputs{
		Transcript:     filepath.Join(dir, stem+"_transcript.txt"),
		TranscriptJSON: filepath.Join(dir, stem+"_transcript.json"),
		Report:         filepath.Join(dir, stem+"_hallucination_report.txt"),
		ReportJSON:     filepath.Join(dir, stem+"_hallucination_report.json"),
	}
}

// WriteOutputs writes the transcript and, when report is non-nil, the audit
// report. Report paths are cleared from the returned Outputs when no report
// was written.
func WriteOutputs(dir, source string, result transcript.Result, report *audit.Report) (Outputs, error) {
	paths := OutputPaths(dir, source)

	text := transcript.FormatLines(result.Segments)
	if text == "" {
		text = strings.TrimSpace(result.Text)
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if err := fileutil.WriteAtomic(paths.Transcript, []byte(text), 0o644); err != nil {
		return Outputs{}, err
	}
	if err := fileutil.WriteJSON(paths.TranscriptJSON, result); err != nil {
		return Outputs{}, err
	}

	if report == nil {
		paths.Report, paths.ReportJSON = "", ""
		return paths, nil
	}
	if err := writeReport(paths, *report); err != nil {
		return Outputs{}, err
	}
	return paths, nil
}

func writeReport(paths Outputs, report audit.Report) error {
	if err := fileutil.WriteAtomic(paths.Report, []byte(audit.FormatText(report)), 0o644); err != nil {
		return err
	}
	return fileutil.WriteJSON(paths.ReportJSON, report)
}

// ReadTranscript loads a transcript written by WriteOutputs.
func ReadTranscript(path string) (transcript.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrNotFound, "pipeline", "read transcript", path, err)
	}
	var result transcript.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrValidation, "pipeline", "parse transcript", path, err)
	}
	return result, nil
}
