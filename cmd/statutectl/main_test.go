package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/statute-rag/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"statutectl"}, args...))
	return out.String(), err
}

func TestBuildIndexRequiresFile(t *testing.T) {
	_, err := runApp(t, "build-index")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")
}

func TestBuildIndexRejectsMissingFile(t *testing.T) {
	_, err := runApp(t, "build-index", "--file", filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open statute file")
}

func TestQuestionCommandsValidateArgs(t *testing.T) {
	for _, command := range []string{"ask", "retrieve"} {
		t.Run(command+" requires a question", func(t *testing.T) {
			_, err := runApp(t, command)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "question is required")
		})

		t.Run(command+" rejects blank question", func(t *testing.T) {
			_, err := runApp(t, command, "   ")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "question is required")
		})

		t.Run(command+" rejects k above limit", func(t *testing.T) {
			_, err := runApp(t, command, "--k", "51", "bank robbery")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "k must be between 0 and 50")
		})

		t.Run(command+" rejects negative k", func(t *testing.T) {
			_, err := runApp(t, command, "--k=-1", "bank robbery")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "k must be between")
		})
	}
}

func TestHistoryExportRequiresOut(t *testing.T) {
	_, err := runApp(t, "history", "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out")
}

func TestHistoryExportRejectsNonPositiveLimit(t *testing.T) {
	_, err := runApp(t, "history", "export", "--out", filepath.Join(t.TempDir(), "h.xlsx"), "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be positive")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runApp(t, "--log-level", "verbose", "ask", "bank robbery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMIME("/data/title18.PDF"))
	assert.True(t, strings.HasPrefix(detectMIME("title18.txt"), "text/plain"))
	assert.Equal(t, "text/plain", detectMIME("title18"))
}

func TestPrintRetrievalFlagsDegradedSignals(t *testing.T) {
	var out bytes.Buffer
	printRetrieval(&out, &domain.RetrievalResult{
		Query: domain.StructuredQuery{Intent: domain.IntentPunishment},
		Results: []domain.RankedResult{{
			ChunkID:    "title18-p3-1",
			Text:       "shall be fined under this title\nor imprisoned",
			FusedScore: 0.0328,
		}},
		DenseDegraded: true,
	})

	text := out.String()
	assert.Contains(t, text, "intent: punishment")
	assert.Contains(t, text, "title18-p3-1")
	assert.Contains(t, text, "shall be fined under this title or imprisoned")
	assert.Contains(t, text, "(dense signal unavailable)")
	assert.NotContains(t, text, "lexical signal unavailable")
}

func TestPrintAnswerListsCitations(t *testing.T) {
	var out bytes.Buffer
	printAnswer(&out, &domain.Answer{
		FormattedText: "See 18 U.S.C. § 1343.",
		Citations:     []domain.Citation{{Reference: "18 U.S.C. § 1343", URL: "https://www.law.cornell.edu/uscode/text/18/1343"}},
	})

	text := out.String()
	assert.Contains(t, text, "Citations:")
	assert.Contains(t, text, "https://www.law.cornell.edu/uscode/text/18/1343")
	assert.NotContains(t, text, "reduced signal set")
}
