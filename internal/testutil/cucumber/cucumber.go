// Package cucumber provides a godog-based BDD test framework for the HTTP API.
//
// Variables are scoped to the scenario. Variable resolution supports:
//   - ${variableName}      → scenario variable lookup
//   - ${response.field}    → response body field via gojq
//   - ${scenarioId}        → short random id, unique per scenario
package cucumber

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"github.com/google/uuid"
	"github.com/itchyny/gojq"
	"github.com/pmezard/go-difflib/difflib"
)

// StepModules is extended from init() by files that contribute steps.
var StepModules []func(ctx *godog.ScenarioContext, s *TestScenario)

func NewTestSuite() *TestSuite {
	return &TestSuite{APIURL: "http://localhost:8080"}
}

func DefaultOptions() godog.Options {
	return godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       []string{"features"},
		Randomize:   time.Now().UTC().UnixNano(),
		Concurrency: 1,
	}
}

// ApplyReportOptions configures junit XML output when GODOG_REPORT_DIR is set.
// Returns a cleanup function that must be called after the test runs.
func ApplyReportOptions(opts *godog.Options, testName string) func() {
	reportDir := os.Getenv("GODOG_REPORT_DIR")
	if reportDir == "" {
		return func() {}
	}
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return func() {}
	}
	path := filepath.Join(reportDir, strings.ReplaceAll(testName, "/", "-")+".xml")
	f, err := os.Create(path)
	if err != nil {
		return func() {}
	}
	opts.Output = f
	opts.Format = "junit"
	return func() { _ = f.Close() }
}

// TestSuite holds state global to all test scenarios.
type TestSuite struct {
	APIURL   string
	TestingT *testing.T
}

// TestScenario holds state for a single scenario. Not accessed concurrently.
type TestScenario struct {
	Suite     *TestSuite
	Client    *http.Client
	Resp      *http.Response
	RespBytes []byte
	respJSON  any
	Variables map[string]any
}

func (suite *TestSuite) InitializeScenario(ctx *godog.ScenarioContext) {
	s := &TestScenario{
		Suite:  suite,
		Client: &http.Client{Timeout: 30 * time.Second},
		Variables: map[string]any{
			"scenarioId": strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		},
	}
	for _, module := range StepModules {
		module(ctx, s)
	}
}

func (s *TestScenario) Logf(format string, args ...any) {
	s.Suite.TestingT.Logf(format, args...)
}

// RespJSON returns the decoded body of the last response.
func (s *TestScenario) RespJSON() (any, error) {
	if s.respJSON == nil {
		if len(s.RespBytes) == 0 {
			return nil, fmt.Errorf("no response body available")
		}
		if err := json.Unmarshal(s.RespBytes, &s.respJSON); err != nil {
			return nil, fmt.Errorf("response is not json: %w\nbody was:\n%s", err, s.RespBytes)
		}
	}
	return s.respJSON, nil
}

// Select runs a gojq selector against the last response and returns the first result.
func (s *TestScenario) Select(selector string) (any, error) {
	doc, err := s.RespJSON()
	if err != nil {
		return nil, err
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, err
	}
	iter := query.Run(doc)
	next, found := iter.Next()
	if !found {
		return nil, fmt.Errorf("response does not have a node that matches selector: %s", selector)
	}
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next, nil
}

// Expand replaces ${var} in the string based on scenario variables.
func (s *TestScenario) Expand(value string) (result string, rerr error) {
	return os.Expand(value, func(name string) string {
		v, err := s.Resolve(name)
		if err == nil {
			var str string
			str, err = ToString(v)
			if err == nil {
				return str
			}
		}
		rerr = err
		return ""
	}), rerr
}

// Resolve looks up a scenario variable or a response.<path> selection.
func (s *TestScenario) Resolve(name string) (any, error) {
	if v, ok := s.Variables[name]; ok {
		return v, nil
	}
	if rest, ok := strings.CutPrefix(name, "response."); ok {
		return s.Select("." + rest)
	}
	return nil, fmt.Errorf("variable ${%s} not defined", name)
}

// ToString renders strings verbatim and everything else as compact json.
func ToString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "null", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// JSONMustMatch compares two json documents for equality, printing a diff on mismatch.
func (s *TestScenario) JSONMustMatch(actual, expected string) error {
	var actualParsed, expectedParsed any
	if err := json.Unmarshal([]byte(actual), &actualParsed); err != nil {
		return fmt.Errorf("error parsing actual json: %w\njson was:\n%s", err, actual)
	}
	expected, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(expected), &expectedParsed); err != nil {
		return fmt.Errorf("error parsing expected json: %w\njson was:\n%s", err, expected)
	}
	if reflect.DeepEqual(expectedParsed, actualParsed) {
		return nil
	}
	expectedIndented, _ := json.MarshalIndent(expectedParsed, "", "  ")
	actualIndented, _ := json.MarshalIndent(actualParsed, "", "  ")
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(expectedIndented)),
		B:        difflib.SplitLines(string(actualIndented)),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return fmt.Errorf("actual does not match expected, diff:\n%s", diff)
}

// JSONMustContain checks that actual holds every field of expected.
func (s *TestScenario) JSONMustContain(actual, expected string) error {
	var actualParsed, expectedParsed any
	if err := json.Unmarshal([]byte(actual), &actualParsed); err != nil {
		return fmt.Errorf("error parsing actual json: %w\njson was:\n%s", err, actual)
	}
	expected, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(expected), &expectedParsed); err != nil {
		return fmt.Errorf("error parsing expected json: %w\njson was:\n%s", err, expected)
	}
	if err := jsonSubset(expectedParsed, actualParsed, ""); err != nil {
		actualIndented, _ := json.MarshalIndent(actualParsed, "", "  ")
		return fmt.Errorf("actual does not contain expected.\n  mismatch: %s\n  actual:\n%s", err, actualIndented)
	}
	return nil
}

// jsonSubset checks that every field in expected exists in actual with a matching value.
// Arrays must have the same length; their elements are compared with subset semantics.
func jsonSubset(expected, actual any, path string) error {
	switch exp := expected.(type) {
	case nil:
		if actual != nil {
			return fmt.Errorf("at %s: expected null, got %v", pathOrRoot(path), actual)
		}
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return fmt.Errorf("at %s: expected object, got %T", pathOrRoot(path), actual)
		}
		for key, expVal := range exp {
			actVal, exists := act[key]
			if !exists {
				return fmt.Errorf("at %s: missing key %q", pathOrRoot(path), key)
			}
			if err := jsonSubset(expVal, actVal, path+"."+key); err != nil {
				return err
			}
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return fmt.Errorf("at %s: expected array, got %T", pathOrRoot(path), actual)
		}
		if len(exp) != len(act) {
			return fmt.Errorf("at %s: expected array length %d, got %d", pathOrRoot(path), len(exp), len(act))
		}
		for i := range exp {
			if err := jsonSubset(exp[i], act[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	default:
		if !reflect.DeepEqual(expected, actual) {
			return fmt.Errorf("at %s: expected %v (%T), got %v (%T)", pathOrRoot(path), expected, expected, actual, actual)
		}
	}
	return nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "$"
	}
	return "$" + path
}
