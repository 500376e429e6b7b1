package sobject

// Normalize turns one raw query page into a sequence of records.
//
// A nil page yields an empty, non-nil slice. A page holding a single record
// yields a one-element slice; there is no separate single-record shape.
func Normalize(q *RawQueryResult) []Record {
	if q == nil {
		return []Record{}
	}
	return NormalizeRecords(q.Records)
}

// NormalizeRecords normalizes each raw record in order, skipping nil entries.
func NormalizeRecords(raw []*RawRecord) []Record {
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		if rec := NormalizeRecord(r); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// NormalizeRecord produces a clean copy of a raw record.
//
// The class tag is dropped (the type field is kept). Nested records are
// normalized recursively and nested query results become []Record, even when
// they hold zero or one record. The Id field is reduced to its first
// occurrence and removed when that value is empty or nil.
//
// Normalizing a record obtained from Record.Raw returns an equal record.
func NormalizeRecord(r *RawRecord) Record {
	if r == nil {
		return nil
	}
	rec := make(Record, len(r.Fields))
	seenID := false
	for _, f := range r.Fields {
		if f.Name == FieldID {
			if seenID {
				continue
			}
			seenID = true
			if id, ok := normalizeID(f.Value); ok {
				rec[FieldID] = id
			}
			continue
		}
		rec[f.Name] = NormalizeValue(f.Value)
	}
	return rec
}

// NormalizeValue normalizes a single field value.
func NormalizeValue(v RawValue) any {
	switch v.Kind {
	case KindRecord:
		if v.Record == nil {
			return nil
		}
		return NormalizeRecord(v.Record)
	case KindQueryResult:
		return Normalize(v.QueryResult)
	}

	switch len(v.Scalars) {
	case 0:
		return nil
	case 1:
		if v.Scalars[0].Nil {
			return nil
		}
		return v.Scalars[0].Text
	}
	texts := make([]string, len(v.Scalars))
	for i, s := range v.Scalars {
		texts[i] = s.Text
	}
	return texts
}

// normalizeID collapses a possibly repeated Id to one non-empty value.
func normalizeID(v RawValue) (string, bool) {
	if v.Kind != KindScalar || len(v.Scalars) == 0 {
		return "", false
	}
	first := v.Scalars[0]
	if first.Nil || first.Text == "" {
		return "", false
	}
	return first.Text, true
}
