package clipboard

import "github.com/atotto/clipboard"

// System is the OS clipboard.
type System struct{}

func NewSystem() *System {
	return &System{}
}

func (s *System) ReadAll() (string, error) {
	return clipboard.ReadAll()
}

func (s *System) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}
