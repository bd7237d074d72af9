package vfs

import (
	"encoding/json"
	"maps"
	"slices"
)

// FS — неизменяемый снимок виртуальной файловой системы.
//
// Нулевое значение — пустая FS. Копирование FS по значению безопасно:
// внутренняя карта никогда не изменяется после создания.
type FS struct {
	files map[string]string
}

// New создаёт FS из карты. Карта копируется.
func New(files map[string]string) FS {
	if len(files) == 0 {
		return FS{}
	}
	return FS{files: maps.Clone(files)}
}

// Get возвращает содержимое файла.
func (f FS) Get(path string) (string, bool) {
	content, ok := f.files[path]
	return content, ok
}

// Has проверяет наличие файла.
func (f FS) Has(path string) bool {
	_, ok := f.files[path]
	return ok
}

// Len возвращает количество файлов.
func (f FS) Len() int {
	return len(f.files)
}

// Paths возвращает отсортированный список путей.
func (f FS) Paths() []string {
	return slices.Sorted(maps.Keys(f.files))
}

// With возвращает новую FS с записанным файлом.
func (f FS) With(path, content string) FS {
	next := make(map[string]string, len(f.files)+1)
	maps.Copy(next, f.files)
	next[path] = content
	return FS{files: next}
}

// Map возвращает копию содержимого как обычную карту.
func (f FS) Map() map[string]string {
	if f.files == nil {
		return map[string]string{}
	}
	return maps.Clone(f.files)
}

// Equal сравнивает содержимое двух FS.
func (f FS) Equal(other FS) bool {
	return maps.Equal(f.files, other.files)
}

// MarshalJSON сериализует FS как объект путь → содержимое.
func (f FS) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Map())
}

// UnmarshalJSON восстанавливает FS из объекта.
func (f *FS) UnmarshalJSON(data []byte) error {
	var files map[string]string
	if err := json.Unmarshal(data, &files); err != nil {
		return err
	}
	*f = New(files)
	return nil
}
