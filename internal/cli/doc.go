// Package cli реализует инструмент командной строки Shelly.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Shelly API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления flows, runs, batches и schedules.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Shelly API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Run выполняется синхронно или с потоком
// событий (SSE), ключи провайдеров передаются заголовками X-API-Key-*.
//
//	client := cli.NewClient("http://localhost:8080")
//	flows, err := client.ListFlows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: shelly flow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - flow: list, show, create, import, export, delete
//   - run: list, start, show
//   - batch: list, start, show, abort
//   - input-set: list, create, delete
//   - schedule: list, create, show, delete, enable, disable
//   - providers
//
// Каждая группа создаётся через фабричную функцию (NewFlowCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
