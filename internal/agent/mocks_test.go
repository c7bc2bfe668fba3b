package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/veskora/screenpilot/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface consumed by the loop.
type MockLLMClient struct {
	mock.Mock
}

// Generate mocks the LLM generation call.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close mocks the client shutdown.
func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Screen Mock --

// MockScreen mocks the Screen boundary.
type MockScreen struct {
	mock.Mock
}

// Capture mocks taking a screenshot.
func (m *MockScreen) Capture(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Size mocks the screen dimension query.
func (m *MockScreen) Size(ctx context.Context) (schemas.ScreenSize, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.ScreenSize), args.Error(1)
}

// -- Input Mock --

// MockInput mocks the Input boundary.
type MockInput struct {
	mock.Mock
}

// ClickAt mocks a click at the given coordinate.
func (m *MockInput) ClickAt(ctx context.Context, x, y int) error {
	args := m.Called(ctx, x, y)
	return args.Error(0)
}

// TypeText mocks typing into the focused element.
func (m *MockInput) TypeText(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}
