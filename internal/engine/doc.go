// Package engine содержит чистые (без I/O) части движка выполнения flow.
//
// Включает:
//   - graph.go    — индекс смежности графа, стартовые узлы, слияние входов, проверка циклов
//   - template.go — рендеринг {{path}} плейсхолдеров
//   - routing.go  — вычисление правил маршрутизации router-узлов
//   - parser.go   — разбор flow из JSON/YAML и валидация
//
// Engine отвечает за понимание структуры flow. Вызовы моделей,
// VFS и обход графа курсором находятся в пакете orchestrator.
package engine
