package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

// readinessWorld holds the state of one scenario
type readinessWorld struct {
	f           *fixture
	requireData bool
	result      *domain.CheckResult
	report      *domain.Report
	writeErr    error
}

func (w *readinessWorld) reset() {
	w.f = newBareFixture()
	w.requireData = false
	w.result = nil
	w.report = nil
	w.writeErr = nil
}

func (w *readinessWorld) everyIndexExists(ctx context.Context) error {
	return w.f.schema.EnsureAll(ctx)
}

func (w *readinessWorld) dataIsRequired() error {
	w.requireData = true
	return nil
}

func (w *readinessWorld) embeddingLength(n int) error {
	w.f.embedder.SetOutputDimensions(n)
	return nil
}

func (w *readinessWorld) clusterStatus(status string) error {
	w.f.index.SetClusterStatus(domain.ClusterStatus(status))
	return nil
}

func (w *readinessWorld) checkIndex(ctx context.Context, name string) error {
	w.result = w.f.health(&fakeEnvironment{}, w.requireData).CheckIndex(ctx, name)
	return nil
}

func (w *readinessWorld) runAll(ctx context.Context) error {
	w.report = w.f.health(&fakeEnvironment{}, w.requireData).RunAll(ctx)
	return nil
}

func (w *readinessWorld) writePatient(ctx context.Context, id, name, symptoms string) error {
	w.writeErr = w.f.writer.WritePatient(ctx, &domain.Patient{PatientID: id, Name: name, Symptoms: symptoms})
	if w.writeErr != nil && !errors.Is(w.writeErr, domain.ErrValidation) {
		return w.writeErr
	}
	return nil
}

func (w *readinessWorld) statusIs(want string) error {
	if w.result == nil {
		return fmt.Errorf("no check has run")
	}
	if string(w.result.Status) != want {
		return fmt.Errorf("expected status %q, got %q (%s)", want, w.result.Status, w.result.Message)
	}
	return nil
}

func (w *readinessWorld) messageIs(want string) error {
	if w.result.Message != want {
		return fmt.Errorf("expected message %q, got %q", want, w.result.Message)
	}
	return nil
}

func (w *readinessWorld) countIs(want int) error {
	got, ok := w.result.Details["count"].(int64)
	if !ok || got != int64(want) {
		return fmt.Errorf("expected count %d, got %v", want, w.result.Details["count"])
	}
	return nil
}

func (w *readinessWorld) writeFailedValidation() error {
	if !errors.Is(w.writeErr, domain.ErrValidation) {
		return fmt.Errorf("expected validation error, got %v", w.writeErr)
	}
	return nil
}

func (w *readinessWorld) patientNotFound(ctx context.Context, id string) error {
	hit, err := w.f.query.FindByID(ctx, domain.IndexPatients, id)
	if err != nil {
		return err
	}
	if hit != nil {
		return fmt.Errorf("patient %s was written", id)
	}
	return nil
}

func (w *readinessWorld) namedCheckStatus(name, want string) error {
	c, ok := w.report.Find(name)
	if !ok {
		return fmt.Errorf("check %q not in report", name)
	}
	if string(c.Status) != want {
		return fmt.Errorf("expected %s to be %q, got %q", name, want, c.Status)
	}
	return nil
}

func (w *readinessWorld) reportFailed() error {
	if w.report.Passed() {
		return fmt.Errorf("expected the report to fail")
	}
	return nil
}

func initializeReadinessScenario(sc *godog.ScenarioContext) {
	w := &readinessWorld{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		w.reset()
		return ctx, nil
	})

	sc.Step(`^every clinical index exists with the declared mapping$`, w.everyIndexExists)
	sc.Step(`^data is required$`, w.dataIsRequired)
	sc.Step(`^the embedding service returns vectors of length (\d+)$`, w.embeddingLength)
	sc.Step(`^the cluster status is "([^"]*)"$`, w.clusterStatus)
	sc.Step(`^I check the index "([^"]*)"$`, w.checkIndex)
	sc.Step(`^I run every check$`, w.runAll)
	sc.Step(`^I write the patient "([^"]*)" named "([^"]*)" with symptoms "([^"]*)"$`, w.writePatient)
	sc.Step(`^the check status is "([^"]*)"$`, w.statusIs)
	sc.Step(`^the check message is "([^"]*)"$`, w.messageIs)
	sc.Step(`^the reported count is (\d+)$`, w.countIs)
	sc.Step(`^the write fails with a validation error$`, w.writeFailedValidation)
	sc.Step(`^the patient "([^"]*)" is not found$`, w.patientNotFound)
	sc.Step(`^the check "([^"]*)" has status "([^"]*)"$`, w.namedCheckStatus)
	sc.Step(`^the report has failed$`, w.reportFailed)
}

func TestReadinessFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeReadinessScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
