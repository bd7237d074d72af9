// Package worker выполняет batches, поставленные в очередь.
//
// # Обзор
//
// Worker — stateless компонент системы Shelly. API и scheduler сохраняют
// batch в статусе PENDING и публикуют batch.requested; воркер:
//
//   - Получает batch.requested из очереди RabbitMQ
//   - Загружает batch, его flows и входы из хранилища
//   - Выполняет batch через batch.Manager (пул из Concurrency run)
//   - Публикует run.completed после каждого run
//   - Публикует live-события run для SSE-наблюдателей (Redis hub)
//   - Обрабатывает batch.abort из собственной очереди отмены
//
// Workers масштабируются горизонтально: несколько экземпляров потребляют
// из одной очереди batches.requested, каждый batch достаётся одному воркеру.
// batch.abort рассылается во все очереди отмены, и его выполняет тот
// воркер, у которого batch активен.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Store:     store,
//	    Manager:   manager,
//	    Publisher: publisher,
//	    Conn:      mqConn,
//	    WorkerID:  cfg.WorkerID,
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Повторная доставка
//
// Воркер выполняет только batch в статусе PENDING. Повторно доставленное
// сообщение для batch, который уже выполняется или завершён, подтверждается
// без действий.
package worker
