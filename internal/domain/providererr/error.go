package providererr

import "fmt"

// ProviderError is the only error shape provider clients return for
// failed calls. Parsing of provider payloads stops here.
type ProviderError struct {
	Operation string
	Raw       RawError
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := "provider"
	if e.Raw.Provider != "" && e.Operation != "" {
		scope = fmt.Sprintf("%s %s", e.Raw.Provider, e.Operation)
	} else if e.Raw.Provider != "" {
		scope = e.Raw.Provider
	} else if e.Operation != "" {
		scope = e.Operation
	}

	switch {
	case e.Raw.Message != "":
		return fmt.Sprintf("%s failed (status %d): %s", scope, e.Raw.Status, e.Raw.Message)
	case e.Raw.Code != "":
		return fmt.Sprintf("%s failed (status %d): %s", scope, e.Raw.Status, e.Raw.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	}
	return fmt.Sprintf("%s failed (status %d)", scope, e.Raw.Status)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind classifies the error.
func (e *ProviderError) Kind() Kind {
	return Classify(e.Raw)
}
