// Package vfs реализует виртуальную файловую систему run и инструменты для неё.
//
// FS — неизменяемое отображение путь → содержимое. Каждая запись
// возвращает новое значение FS, поэтому параллельные run никогда не
// разделяют состояние файловой системы.
//
// Модель работает с FS через четыре инструмента:
//   - view — содержимое файла с номерами строк
//   - edit — замена первого вхождения текста
//   - create_file — создание или перезапись файла
//   - list_files — отсортированный список путей
package vfs
