package nrbf

// Resolve follows a back-reference chain through the object table until it
// reaches a non-reference value. A reference to an id the table never
// assigned resolves to a missing value. Reference cycles terminate at the
// last reference seen rather than looping.
func (d *Decoder) Resolve(v Value) Value {
	seen := make(map[int32]struct{})
	for v.Kind == KindRef {
		if _, ok := seen[v.Ref]; ok {
			return v
		}
		seen[v.Ref] = struct{}{}
		next, ok := d.objects[v.Ref]
		if !ok {
			return missingValue()
		}
		v = next
	}
	return v
}
