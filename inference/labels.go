package inference

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadLabels reads a label file with one class name per line. The line number
// is the label index. Surrounding whitespace is trimmed and trailing blank
// lines are ignored. A loaded file always yields a non-nil list, so an empty
// file still enables the label range check.
//
// Arguments:
//   - path: The label file.
//
// Returns:
//   - []string: The class names.
//   - error: ErrFileNotFound, or a read error.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrFileNotFound, "labels %s", path)
		}
		return nil, errors.Wrapf(err, "opening labels %s", path)
	}
	defer f.Close()

	labels := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading labels %s", path)
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	return labels, nil
}
