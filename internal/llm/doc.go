// Package llm — клиент моделей и цикл инструментов.
//
// Client отправляет диалог провайдеру, стримит текст и, если модели
// разрешены инструменты, выполняет их вызовы против VFS run:
//
//	Requesting → StreamingText → Done
//	                           → AwaitingToolResults → Requesting
//	                           → Failed
//
// Инструменты предлагаются в раундах 1..N (N = MaxToolIterations).
// Раунд N+1 идёт без инструментов, поэтому цикл всегда завершается.
//
// Provider — один потоковый ход модели. OpenAIProvider работает с любым
// OpenAI-совместимым endpoint, поэтому anthropic и google-vertex
// регистрируются как тот же провайдер с другим базовым URL.
package llm
