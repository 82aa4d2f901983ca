package clipboard

// Clipboard provides plain-text clipboard read and write.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}
