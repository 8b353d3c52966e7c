package port

// EmailValidator is the injected strategy for syntactic email validation.
// The default implementation is chosen at process start; use cases never
// reach for ambient global state.
type EmailValidator interface {
	Validate(email string) error
}
