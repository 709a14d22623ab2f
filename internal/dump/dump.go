// Package dump writes a pipeline's resolved filter coefficients to a file,
// one value per line, matching the original --dump-coeffs debugging aid
// (original_source/src/main.cpp): build the pipeline once at startup,
// write pipeline.coeffs() before ever touching the network.
package dump

import (
	"bufio"
	"fmt"
	"os"

	"github.com/nfpgo/nfp/internal/pipeline"
)

// WriteCoeffs writes every element's resolved coefficients to path, one
// float per line in pipeline order. A gain element's coefficients are
// {1,0,0,k,0,0}; a filter element's are its cascade's 6-tuples
// concatenated per section.
func WriteCoeffs(path string, p *pipeline.Pipeline) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%s is not a proper path: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, c := range p.Coeffs() {
		if _, err := fmt.Fprintf(w, "%v\n", c); err != nil {
			return err
		}
	}
	return w.Flush()
}
