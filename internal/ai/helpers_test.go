package ai

import "io"

// collect drains a stream into a single string.
func collect(s TokenStream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		tok, err := s.Next()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, tok...)
	}
}
