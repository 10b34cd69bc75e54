package reqctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

// lifecycleScenario holds state shared across step definitions within a scenario.
type lifecycleScenario struct {
	provider *Provider
	errs     *hookErrors
	txn      *fakeTxn
	ctx      context.Context
	rec      *recorder
	regErr   error

	resolved   *Context
	subRoutine string
	subInfo    any
}

func (s *lifecycleScenario) reset() {
	*s = lifecycleScenario{ctx: context.Background(), rec: &recorder{}, errs: &hookErrors{}}
}

func (s *lifecycleScenario) newProvider(strict bool) {
	s.provider = NewProvider(fakeSource{}, &Config{
		StrictLifecycle: strict,
		Logger:          slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		ErrorHandler:    s.errs.handle,
	})
}

func (s *lifecycleScenario) aProviderInLenientMode() error {
	s.newProvider(false)
	return nil
}

func (s *lifecycleScenario) aProviderInStrictMode() error {
	s.newProvider(true)
	return nil
}

func (s *lifecycleScenario) aTransaction(name, traceID string) error {
	s.txn = newFakeTxn(name, traceID)
	s.ctx = withTxn(context.Background(), s.txn)

	return nil
}

func (s *lifecycleScenario) iResolveWithoutTransaction() error {
	s.resolved = s.provider.Current(context.Background())
	return nil
}

func (s *lifecycleScenario) correlationIDShouldBe(want string) error {
	if got := s.resolved.CorrelationID(); got != want {
		return fmt.Errorf("expected correlation id %q, got %q", want, got)
	}

	return nil
}

func (s *lifecycleScenario) routineShouldBe(want string) error {
	if got := s.resolved.Routine(); got != want {
		return fmt.Errorf("expected routine %q, got %q", want, got)
	}

	return nil
}

func (s *lifecycleScenario) iRegisterEndHooks(labels string) error {
	for _, label := range strings.Split(labels, ",") {
		if err := s.iRegisterEndHook(strings.TrimSpace(label)); err != nil {
			return err
		}
	}

	return nil
}

func (s *lifecycleScenario) iRegisterEndHook(label string) error {
	return s.provider.OnContextEnd(s.ctx, s.rec.hook(label))
}

func (s *lifecycleScenario) iRegisterFailingEndHook() error {
	return s.provider.OnContextEnd(s.ctx, func(string) error { return errors.New("hook failed") })
}

func (s *lifecycleScenario) iRegisterEndHookWithoutTransaction(label string) error {
	s.regErr = s.provider.OnContextEnd(context.Background(), s.rec.hook(label))
	return nil
}

func (s *lifecycleScenario) theTransactionEnds() error {
	if s.txn == nil {
		return errors.New("no transaction started")
	}

	s.txn.End()

	return nil
}

func (s *lifecycleScenario) hooksShouldHaveRunAs(want string) error {
	got := strings.Join(s.rec.Calls(), ", ")
	if got != want {
		return fmt.Errorf("expected hooks %q, got %q", want, got)
	}

	return nil
}

func (s *lifecycleScenario) hookFailuresReported(n int) error {
	if got := len(s.errs.all()); got != n {
		return fmt.Errorf("expected %d hook failures, got %d", n, got)
	}

	return nil
}

func (s *lifecycleScenario) theContextInfoIs(info string) error {
	s.provider.SetContextInfo(s.ctx, info)
	return nil
}

func (s *lifecycleScenario) subContextSetsInfo(routine, info string) error {
	return s.provider.SubContext(s.ctx, routine, func(ctx context.Context) error {
		s.provider.SetContextInfo(ctx, info)
		s.subRoutine = s.provider.Routine(ctx)
		s.subInfo = s.provider.ContextInfo(ctx)

		return nil
	})
}

func (s *lifecycleScenario) subContextShouldHaveSeen(routine, info string) error {
	if s.subRoutine != routine || s.subInfo != info {
		return fmt.Errorf("expected %q/%q inside sub-context, got %q/%v", routine, info, s.subRoutine, s.subInfo)
	}

	return nil
}

func (s *lifecycleScenario) contextInfoShouldStillBe(want string) error {
	if got := s.provider.ContextInfo(s.ctx); got != want {
		return fmt.Errorf("expected context info %q, got %v", want, got)
	}

	return nil
}

func (s *lifecycleScenario) registrationShouldFailNotInstalled() error {
	if !errors.Is(s.regErr, ErrLifecycleNotInstalled) {
		return fmt.Errorf("expected ErrLifecycleNotInstalled, got %v", s.regErr)
	}

	return nil
}

// initializeLifecycleScenario registers step definitions for each scenario.
func initializeLifecycleScenario(ctx *godog.ScenarioContext) {
	s := &lifecycleScenario{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		s.reset()
		return ctx, nil
	})

	ctx.Step(`^a provider in lenient mode$`, s.aProviderInLenientMode)
	ctx.Step(`^a provider in strict mode$`, s.aProviderInStrictMode)
	ctx.Step(`^a transaction "([^"]*)" with trace id "([^"]*)"$`, s.aTransaction)
	ctx.Step(`^I resolve the current context without a transaction$`, s.iResolveWithoutTransaction)
	ctx.Step(`^the correlation id should be "([^"]*)"$`, s.correlationIDShouldBe)
	ctx.Step(`^the routine should be "([^"]*)"$`, s.routineShouldBe)
	ctx.Step(`^I register end hooks "([^"]*)"$`, s.iRegisterEndHooks)
	ctx.Step(`^I register end hook "([^"]*)"$`, s.iRegisterEndHook)
	ctx.Step(`^I register a failing end hook$`, s.iRegisterFailingEndHook)
	ctx.Step(`^I register end hook "([^"]*)" without a transaction$`, s.iRegisterEndHookWithoutTransaction)
	ctx.Step(`^the transaction ends$`, s.theTransactionEnds)
	ctx.Step(`^the hooks should have run as "([^"]*)"$`, s.hooksShouldHaveRunAs)
	ctx.Step(`^(\d+) hook failures? should have been reported$`, s.hookFailuresReported)
	ctx.Step(`^the context info is "([^"]*)"$`, s.theContextInfoIs)
	ctx.Step(`^a sub-context "([^"]*)" sets the context info to "([^"]*)"$`, s.subContextSetsInfo)
	ctx.Step(`^the sub-context should have seen routine "([^"]*)" and info "([^"]*)"$`, s.subContextShouldHaveSeen)
	ctx.Step(`^the context info should still be "([^"]*)"$`, s.contextInfoShouldStillBe)
	ctx.Step(`^registration should fail because the lifecycle is not installed$`, s.registrationShouldFailNotInstalled)
}

// TestFeatures runs the GoDog scenarios under testdata/features.
func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeLifecycleScenario,
		Options: &godog.Options{
			Format:   "progress",
			Paths:    []string{"testdata/features"},
			TestingT: t,
			Tags:     os.Getenv("GODOG_TAGS"),
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
