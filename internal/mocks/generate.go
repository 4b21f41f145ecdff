// Package mocks provides gomock implementations of the auth ports.
//
// This package uses go.uber.org/mock (gomock) for strict call expectations where the
// hand-written doubles in internal/mocks/auth are too loose.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	verifier := mocks.NewMockTokenVerifier(ctrl)
//	verifier.EXPECT().VerifyToken(gomock.Any(), "token").Return(identity, nil)
package mocks

// Generate mock for TokenVerifier interface from internal/ports package.
// This creates MockTokenVerifier with methods for all TokenVerifier interface methods:
// VerifyToken
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_verifier_mock.go github.com/target/mmk-portal/internal/ports TokenVerifier

// Generate mock for ExecutionGuard interface from internal/ports package.
// This creates MockExecutionGuard with methods for all ExecutionGuard interface methods:
// Acquire
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=execution_guard_mock.go github.com/target/mmk-portal/internal/ports ExecutionGuard
