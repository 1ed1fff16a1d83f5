package cucumber

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I (GET|POST|PUT|DELETE|OPTIONS) path "([^"]*)"$`, s.sendHTTPRequest)
		ctx.Step(`^I (GET|POST|PUT|DELETE|OPTIONS) path "([^"]*)" with json body:$`, s.SendHTTPRequestWithJSONBody)

		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response should match json:$`, s.theResponseShouldMatchJSON)
		ctx.Step(`^the response should contain json:$`, s.theResponseShouldContainJSON)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, s.iStoreTheSelectionFromTheResponseAs)
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.theSelectionFromTheResponseShouldMatch)
		ctx.Step(`^the response header "([^"]*)" should match "([^"]*)"$`, s.theResponseHeaderShouldMatch)
		ctx.Step(`^\${([^}]*)} is not empty$`, s.variableIsNotEmpty)
	})
}

func (s *TestScenario) sendHTTPRequest(method, path string) error {
	return s.SendHTTPRequestWithJSONBody(method, path, nil)
}

// SendHTTPRequestWithJSONBody sends the request with variables expanded in
// both the path and the body, recording the response on the scenario.
func (s *TestScenario) SendHTTPRequestWithJSONBody(method, path string, jsonTxt *godog.DocString) error {
	var body io.Reader
	if jsonTxt != nil {
		expanded, err := s.Expand(jsonTxt.Content)
		if err != nil {
			return err
		}
		body = bytes.NewBufferString(expanded)
	}
	expandedPath, err := s.Expand(path)
	if err != nil {
		return err
	}

	s.Resp = nil
	s.RespBytes = nil
	s.respJSON = nil

	req, err := http.NewRequestWithContext(context.Background(), method, s.Suite.APIURL+expandedPath, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	s.Resp = resp
	s.RespBytes, err = io.ReadAll(resp.Body)
	return err
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	if s.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	if actual := s.Resp.StatusCode; expected != actual {
		return fmt.Errorf("expected response code to be: %d, but actual is: %d, body: %s", expected, actual, s.RespBytes)
	}
	return nil
}

func (s *TestScenario) theResponseShouldMatchJSON(expected *godog.DocString) error {
	if len(s.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustMatch(string(s.RespBytes), expected.Content)
}

func (s *TestScenario) theResponseShouldContainJSON(expected *godog.DocString) error {
	if len(s.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustContain(string(s.RespBytes), expected.Content)
}

func (s *TestScenario) iStoreTheSelectionFromTheResponseAs(selector, as string) error {
	v, err := s.Select(selector)
	if err != nil {
		return err
	}
	s.Variables[as] = v
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatch(selector, expected string) error {
	actual, err := s.Select(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	actualText, err := ToString(actual)
	if err != nil {
		return err
	}
	if actualText != expected {
		return fmt.Errorf("selected JSON does not match. expected: %v, actual: %v", expected, actualText)
	}
	return nil
}

func (s *TestScenario) theResponseHeaderShouldMatch(header, expected string) error {
	if s.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	expected, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if actual := s.Resp.Header.Get(header); actual != expected {
		return fmt.Errorf("response header %s: expected %q, actual %q", header, expected, actual)
	}
	return nil
}

func (s *TestScenario) variableIsNotEmpty(name string) error {
	value, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if value == nil || value == "" {
		return fmt.Errorf("variable ${%s} is empty", name)
	}
	return nil
}
