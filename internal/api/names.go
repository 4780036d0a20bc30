package api

import "strings"

// normalizeLocked: сначала точное совпадение, потом регистронезависимое,
// но только если такое имя одно.
func (r *Registry) normalizeLocked(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if _, ok := r.specs[name]; ok {
		return name, true
	}
	var found string
	for key := range r.specs {
		if strings.EqualFold(key, name) {
			if found != "" { // неуникально
				return "", false
			}
			found = key
		}
	}
	return found, found != ""
}

// NormalizeSpecName возвращает ключ спецификации в реестре.
func (r *Registry) NormalizeSpecName(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.normalizeLocked(name)
}
