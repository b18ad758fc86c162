package content

import "fmt"

// Validate performs the shape check applied to incoming writes: an object
// with a settings object and all seven collections present as arrays. Entry
// shapes are not inspected.
func Validate(raw any) error {
	obj, ok := raw.(map[string]any)
	if !ok || obj == nil {
		return fmt.Errorf("%w: expected an object", ErrInvalidDocument)
	}
	if settings, ok := obj["settings"].(map[string]any); !ok || settings == nil {
		return fmt.Errorf("%w: settings must be an object", ErrInvalidDocument)
	}
	for _, name := range CollectionNames {
		if _, ok := obj[name].([]any); !ok {
			return fmt.Errorf("%w: %s must be an array", ErrInvalidDocument, name)
		}
	}
	return nil
}
