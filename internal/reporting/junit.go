package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spboyer/sqleval/internal/models"
)

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one experiment run.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one turn.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit renders a run as one suite. A mismatch is a failure, a hard
// error is an error and a turn without a reference is skipped.
func ConvertToJUnit(result *models.ExperimentResult) *JUnitTestSuites {
	durationSec := result.FinishedAt.Sub(result.StartedAt).Seconds()
	m := result.Metrics

	suite := JUnitTestSuite{
		Name:      result.ExperimentName,
		Tests:     m.NumTurns,
		Errors:    m.Errors,
		Failures:  m.Comparable - m.Matches,
		Time:      durationSec,
		Timestamp: result.StartedAt.Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "run_id", Value: result.RunID},
			{Name: "model", Value: configString(result.Config, "agent", "model")},
			{Name: "engine", Value: configString(result.Config, "agent", "engine")},
			{Name: "accuracy", Value: formatAccuracy(m.Accuracy)},
		},
	}

	for _, item := range result.Items {
		tc := convertRecord(result.ExperimentName, item)
		if tc.Skipped != nil {
			suite.Skipped++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	return &JUnitTestSuites{
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Time:       durationSec,
		TestSuites: []JUnitTestSuite{suite},
	}
}

func convertRecord(experiment string, r models.TurnRecord) JUnitTestCase {
	classname := experiment
	if r.DBFile != "" {
		classname = strings.TrimSuffix(filepath.Base(r.DBFile), filepath.Ext(r.DBFile))
	}
	tc := JUnitTestCase{
		Name:      r.TurnUID,
		Classname: classname,
		Time:      r.AgentWallMs / 1000,
	}

	switch {
	case r.Error != "":
		tc.Error = &JUnitError{Message: r.Error, Type: "TurnError"}
	case r.Verdict == models.VerdictMismatch:
		tc.Failure = &JUnitFailure{
			Message: fmt.Sprintf("%s: results differ from reference", r.TurnUID),
			Type:    "ResultMismatch",
			Body:    mismatchDetails(r),
		}
	case r.Verdict == models.VerdictNotComparable:
		tc.Skipped = &JUnitSkipped{Message: "no reference query"}
	}
	return tc
}

func mismatchDetails(r models.TurnRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "question: %s\n", r.Question)
	fmt.Fprintf(&b, "predicted: %s\n", orNone(r.PredSQL))
	if r.PredExecution != nil {
		fmt.Fprintf(&b, "predicted status: %s %s\n", r.PredExecution.Status, r.PredExecution.Error)
	}
	fmt.Fprintf(&b, "reference: %s\n", r.GoldSQL)
	if r.GoldExecution != nil {
		fmt.Fprintf(&b, "reference status: %s %s\n", r.GoldExecution.Status, r.GoldExecution.Error)
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func formatAccuracy(acc *float64) string {
	if acc == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *acc)
}

func configString(cfg map[string]any, section, key string) string {
	sec, ok := cfg[section].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := sec[key].(string)
	return s
}

// WriteJUnitXML writes JUnit XML to the specified file path.
func WriteJUnitXML(result *models.ExperimentResult, path string) error {
	suites := ConvertToJUnit(result)

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}

	output := append([]byte(xml.Header), data...)
	return os.WriteFile(path, output, 0644)
}
