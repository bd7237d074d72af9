// Package orchestrator выполняет flow.
//
// Executor отвечает за:
//   - Построение графа и выбор точки входа
//   - Обход графа одним курсором, узел за узлом
//   - Вычисление входа каждого узла по входящим рёбрам
//   - Вызов модели для agent и structured-output узлов
//   - Ветвление router-узлов
//   - Сборку HTML из VFS для html-renderer
//   - Передачу результатов узлов в Sink по мере выполнения
//   - Финализацию run (COMPLETED/FAILED)
//
// Узлы одного run выполняются строго последовательно. Параллелизм
// возникает только между run (см. пакет batch), и каждый run работает
// со своей копией VFS.
package orchestrator
