package engine

import "io"

// Member is a top-level key and whether its value is an object.
type Member struct {
	Key    string
	Object bool
}

// TopLevelKeys reads one value from src. When it is an object, it returns
// the object's members in input order, duplicates included, without decoding
// member values. src should not reject duplicates so callers can see them.
func TopLevelKeys(src TokenSource) (keys []Member, object bool, err error) {
	tok, err := src.NextToken()
	if err != nil {
		return nil, false, err
	}
	if tok.Kind != KindBeginObject {
		return nil, false, nil
	}
	for {
		tok, err = src.NextToken()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return keys, true, err
		}
		if tok.Kind == KindEndObject {
			return keys, true, nil
		}
		if tok.Kind != KindKey {
			return keys, true, io.ErrUnexpectedEOF
		}
		key := tok.String
		vt, err := src.NextToken()
		if err != nil {
			return keys, true, err
		}
		keys = append(keys, Member{Key: key, Object: vt.Kind == KindBeginObject})
		if err := SkipValue(src, vt); err != nil {
			return keys, true, err
		}
	}
}
