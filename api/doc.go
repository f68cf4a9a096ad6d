// Package api provides OpenAPI/Swagger documentation for the PromptFlow API.
//
// This package contains the request/response DTOs and related documentation
// for the PromptFlow HTTP API.
//
// # API Overview
//
// PromptFlow provides a RESTful API for:
//   - Prompt refinement with topic detection and reference suggestions
//   - Searching previously refined prompts by topic or relevance
//   - Storage migration administration (read ramp, shadow writes)
//   - Health monitoring and metrics
//
// # Authentication
//
// Administrative endpoints require authentication via a Bearer JWT:
//
//	Authorization: Bearer <token>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/promptflow/main.go -o api --parseDependency --parseInternal
package api
