// Package mocks provides mock implementations for testing the auth core.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	roles := mocks.NewMockRoleStore(ctrl)
//	roles.EXPECT().GetRole(gomock.Any(), "user-1").Return(domainauth.RawRoleAdmin, nil)
package mocks

// Generate mock for IdentityService interface from internal/ports package.
// This creates MockIdentityService with methods for all IdentityService interface methods:
// GetSession, OnAuthStateChange, SignInWithPassword, SignUp, SignOut, UpdateUser
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_service_mock.go github.com/tracenation/tracenation-api/internal/ports IdentityService

// Generate mock for RoleStore interface from internal/ports package.
// This creates MockRoleStore with methods for all RoleStore interface methods:
// GetRole, UpsertRole
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=role_store_mock.go github.com/tracenation/tracenation-api/internal/ports RoleStore
