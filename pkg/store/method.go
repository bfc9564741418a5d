package store

// Method is a function stored in a store's table or defaults.
// It receives the store it is bound to as its first argument.
type Method struct {
	name string
	fn   func(s *Store, args ...any) any
}

// Func creates a named Method.
func Func(name string, fn func(s *Store, args ...any) any) *Method {
	return &Method{name: name, fn: fn}
}

// Name returns the method name.
func (m *Method) Name() string {
	return m.name
}

// Call invokes the method with s as its receiver.
func (m *Method) Call(s *Store, args ...any) any {
	if m == nil || m.fn == nil {
		return nil
	}
	return m.fn(s, args...)
}

// Bound is a Method bound to its owning store.
type Bound struct {
	store  *Store
	method *Method
}

// Call invokes the bound method.
func (b *Bound) Call(args ...any) any {
	return b.method.Call(b.store, args...)
}

// Store returns the store the method is bound to.
func (b *Bound) Store() *Store {
	return b.store
}

// Method returns the unbound method.
func (b *Bound) Method() *Method {
	return b.method
}

// Bind returns m bound to s. Repeated calls with the same method return the
// same *Bound, so consumers may compare bound methods by reference.
func (s *Store) Bind(m *Method) *Bound {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.bound[m]; ok {
		return b
	}
	if s.bound == nil {
		s.bound = make(map[*Method]*Bound)
	}
	b := &Bound{store: s, method: m}
	s.bound[m] = b
	return b
}
