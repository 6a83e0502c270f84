package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/model"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -source=postgres.go -destination=./mocks/storage_mock.go -package=mocks Storage

var (
	// ErrOrderNotFound возвращается, если заказ с таким идентификатором не существует.
	ErrOrderNotFound = errors.New("заказ не найден")
	// ErrEmptyOrder возвращается при попытке сохранить заказ без позиций.
	ErrEmptyOrder = errors.New("заказ не содержит позиций")
)

// Storage определяет интерфейс хранилища заказов. Это единственное
// место, где изменения заказа применяются долговременно; конкурентные
// изменения одного заказа сериализуются на уровне БД.
type Storage interface {
	CreateOrder(ctx context.Context, draft *model.OrderDraft) (*model.Order, error)
	GetOrderByUID(ctx context.Context, orderUID string) (*model.Order, error)
	ListOrders(ctx context.Context, status string, page, limit int) ([]model.Order, int, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderUID string, status model.OrderStatus, trackingNumber string) error
	UpdatePaymentStatus(ctx context.Context, orderUID string, status model.PaymentStatus) error
	Close() error
}

// postgresStorage обеспечивает взаимодействие с базой данных PostgreSQL.
// Это конкретная реализация интерфейса Storage.
type postgresStorage struct {
	db     *sqlx.DB
	tracer trace.Tracer // Для трассировки
}

// New создает подключение к БД, применяет миграции и возвращает
// экземпляр, реализующий интерфейс Storage.
func New(dbURL, migrationsPath string) (Storage, error) {
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	// Запуск миграций
	if err := runMigrations(dbURL, migrationsPath); err != nil {
		return nil, fmt.Errorf("ошибка применения миграций: %w", err)
	}

	return &postgresStorage{
		db:     db,
		tracer: otel.Tracer("postgres-storage"), // Инициализация трейсера
	}, nil
}

// runMigrations выполняет миграции БД до последней версии.
func runMigrations(dbURL, migrationsPath string) error {
	log.Println("Поиск и применение миграций...")

	// Важно: 'file://' префикс
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), dbURL)
	if err != nil {
		return fmt.Errorf("не удалось создать экземпляр миграции: %w", err)
	}

	// Применяем миграции "вверх"
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("не удалось получить версию миграции: %w", err)
	}

	if dirty {
		log.Printf("БД в 'грязном' состоянии (dirty). Версия: %d. Рекомендуется проверка.", version)
	}

	log.Printf("Миграции успешно применены. Текущая версия БД: %d", version)
	return nil
}

// CreateOrder сохраняет черновик как новый заказ в одной транзакции.
// Идентификатор и время создания назначаются здесь. Итоговая сумма
// записывается как есть из черновика и дальше не пересчитывается.
//
// TODO: сверка клиентского totalAmount с пересчетом на стороне сервера
// не выполняется; при расхождении канонической считается записанная
// сумма.
func (s *postgresStorage) CreateOrder(ctx context.Context, draft *model.OrderDraft) (order *model.Order, err error) {
	// Создаем span для трассировки
	ctx, span := s.tracer.Start(ctx, "DB.CreateOrder")
	defer span.End()

	if len(draft.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	// Используем defer с функцией, чтобы корректно обработать panic и ошибки
	defer func() {
		if p := recover(); p != nil {
			// Если была паника, откатываем
			_ = tx.Rollback()
			panic(p) // Восстанавливаем панику
		} else if err != nil {
			// Если функция завершилась с ошибкой, откатываем
			// Логгируем ошибку отката, если она не sql.ErrTxDone
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Printf("Ошибка отката транзакции (после ошибки: %v): %v", err, rbErr)
			}
		}
	}()

	addr := draft.ShippingAddress
	addressQuery := `INSERT INTO shipping_addresses (full_name, phone, street, city, state, zip_code, country) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	var addressID int
	if err = tx.GetContext(ctx, &addressID, addressQuery, addr.FullName, addr.Phone, addr.Street, addr.City, addr.State, addr.ZipCode, addr.Country); err != nil {
		return nil, fmt.Errorf("ошибка сохранения адреса доставки: %w", err)
	}

	orderUID := uuid.New().String()
	createdAt := time.Now().UTC()

	orderQuery := `INSERT INTO orders (order_uid, user_id, address_id, payment_method, shipping_cost, total_amount, order_status, payment_status, tracking_number, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err = tx.ExecContext(ctx, orderQuery, orderUID, draft.UserID, addressID, draft.PaymentMethod, draft.ShippingCost, draft.TotalAmount, model.StatusPending, model.PaymentPending, "", createdAt); err != nil {
		return nil, fmt.Errorf("ошибка сохранения заказа: %w", err)
	}

	items := make([]model.OrderItem, len(draft.Items))
	for i, item := range draft.Items {
		itemQuery := `INSERT INTO order_items (order_uid, product_id, size, quantity, unit_price) VALUES ($1, $2, $3, $4, $5) RETURNING id`
		var itemID int
		if err = tx.GetContext(ctx, &itemID, itemQuery, orderUID, item.ProductID, item.Size, item.Quantity, item.UnitPrice); err != nil {
			return nil, fmt.Errorf("ошибка сохранения позиции заказа: %w", err)
		}

		saved := item
		saved.ID = itemID
		saved.OrderUID = orderUID
		saved.Accessories = make([]model.Accessory, 0, len(item.Accessories))

		for _, acc := range item.Accessories {
			accQuery := `INSERT INTO item_accessories (item_id, name, price) VALUES ($1, $2, $3)`
			if _, err = tx.ExecContext(ctx, accQuery, itemID, acc.Name, acc.Price); err != nil {
				return nil, fmt.Errorf("ошибка сохранения дополнения: %w", err)
			}
			acc.ItemID = itemID
			saved.Accessories = append(saved.Accessories, acc)
		}
		items[i] = saved
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	addr.ID = addressID
	return &model.Order{
		OrderUID:        orderUID,
		UserID:          draft.UserID,
		Items:           items,
		ShippingAddress: addr,
		PaymentMethod:   draft.PaymentMethod,
		ShippingCost:    draft.ShippingCost,
		TotalAmount:     draft.TotalAmount,
		OrderStatus:     model.StatusPending,
		PaymentStatus:   model.PaymentPending,
		TrackingNumber:  "",
		CreatedAt:       createdAt,
	}, nil
}

const orderSelectColumns = `
        o.order_uid, o.user_id, o.payment_method, o.shipping_cost, o.total_amount,
        o.order_status, o.payment_status, o.tracking_number, o.created_at,
        a.id "address.id", a.full_name "address.full_name", a.phone "address.phone",
        a.street "address.street", a.city "address.city", a.state "address.state",
        a.zip_code "address.zip_code", a.country "address.country"`

// GetOrderByUID извлекает полный объект заказа по его UID.
func (s *postgresStorage) GetOrderByUID(ctx context.Context, orderUID string) (*model.Order, error) {
	// Создаем span для трассировки
	ctx, span := s.tracer.Start(ctx, "DB.GetOrderByUID")
	defer span.End()

	var order model.Order
	query := `SELECT` + orderSelectColumns + `
        FROM orders o
        JOIN shipping_addresses a ON o.address_id = a.id
        WHERE o.order_uid = $1`

	if err := s.db.GetContext(ctx, &order, query, orderUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		metrics.DBErrors.WithLabelValues("get_order").Inc() // Метрика ошибки
		return nil, fmt.Errorf("не удалось получить заказ: %w", err)
	}

	if err := s.attachItems(ctx, []*model.Order{&order}); err != nil {
		metrics.DBErrors.WithLabelValues("get_items").Inc() // Метрика ошибки
		return nil, err
	}

	return &order, nil
}

// ListOrders возвращает страницу заказов (новые первыми) и общее число
// страниц. Пустой фильтр статуса означает "все статусы". Фильтрация и
// пагинация выполняются на стороне БД.
func (s *postgresStorage) ListOrders(ctx context.Context, status string, page, limit int) ([]model.Order, int, error) {
	// Создаем span для трассировки
	ctx, span := s.tracer.Start(ctx, "DB.ListOrders")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM orders WHERE ($1 = '' OR order_status = $1)`
	if err := s.db.GetContext(ctx, &total, countQuery, status); err != nil {
		metrics.DBErrors.WithLabelValues("list_orders").Inc() // Метрика ошибки
		return nil, 0, fmt.Errorf("не удалось посчитать заказы: %w", err)
	}

	totalPages := (total + limit - 1) / limit

	query := `SELECT` + orderSelectColumns + `
        FROM orders o
        JOIN shipping_addresses a ON o.address_id = a.id
        WHERE ($1 = '' OR o.order_status = $1)
        ORDER BY o.created_at DESC
        LIMIT $2 OFFSET $3`

	var orders []model.Order
	if err := s.db.SelectContext(ctx, &orders, query, status, limit, (page-1)*limit); err != nil {
		metrics.DBErrors.WithLabelValues("list_orders").Inc() // Метрика ошибки
		return nil, 0, fmt.Errorf("не удалось получить список заказов: %w", err)
	}

	if err := s.attachItemsToSlice(ctx, orders); err != nil {
		metrics.DBErrors.WithLabelValues("get_items").Inc() // Метрика ошибки
		return nil, 0, err
	}

	return orders, totalPages, nil
}

// ListOrdersByUser возвращает все заказы пользователя, новые первыми.
func (s *postgresStorage) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	// Создаем span для трассировки
	ctx, span := s.tracer.Start(ctx, "DB.ListOrdersByUser")
	defer span.End()

	query := `SELECT` + orderSelectColumns + `
        FROM orders o
        JOIN shipping_addresses a ON o.address_id = a.id
        WHERE o.user_id = $1
        ORDER BY o.created_at DESC`

	var orders []model.Order
	if err := s.db.SelectContext(ctx, &orders, query, userID); err != nil {
		metrics.DBErrors.WithLabelValues("list_orders").Inc() // Метрика ошибки
		return nil, fmt.Errorf("не удалось получить заказы пользователя: %w", err)
	}

	if err := s.attachItemsToSlice(ctx, orders); err != nil {
		metrics.DBErrors.WithLabelValues("get_items").Inc() // Метрика ошибки
		return nil, err
	}

	return orders, nil
}

// UpdateOrderStatus атомарно записывает новый статус выполнения и
// трек-номер одним UPDATE: оба поля меняются вместе или не меняются
// вовсе. Значения уже проверены машиной состояний.
func (s *postgresStorage) UpdateOrderStatus(ctx context.Context, orderUID string, status model.OrderStatus, trackingNumber string) error {
	// Создаем span для трассировки
	ctx, span := s.tracer.Start(ctx, "DB.UpdateOrderStatus")
	defer span.End()

	query := `UPDATE orders SET order_status = $1, tracking_number = $2 WHERE order_uid = $3`
	result, err := s.db.ExecContext(ctx, query, status, trackingNumber, orderUID)
	if err != nil {
		metrics.DBErrors.WithLabelValues("update_status").Inc() // Метрика ошибки
		return fmt.Errorf("не удалось обновить статус заказа: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("не удалось получить число измененных строк: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdatePaymentStatus атомарно записывает новый статус оплаты.
// Статус выполнения и трек-номер не затрагиваются.
func (s *postgresStorage) UpdatePaymentStatus(ctx context.Context, orderUID string, status model.PaymentStatus) error {
	// Создаем span для трассировки
	ctx, span := s.tracer.Start(ctx, "DB.UpdatePaymentStatus")
	defer span.End()

	query := `UPDATE orders SET payment_status = $1 WHERE order_uid = $2`
	result, err := s.db.ExecContext(ctx, query, status, orderUID)
	if err != nil {
		metrics.DBErrors.WithLabelValues("update_payment").Inc() // Метрика ошибки
		return fmt.Errorf("не удалось обновить статус оплаты: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("не удалось получить число измененных строк: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// attachItemsToSlice загружает позиции для заказов из среза.
func (s *postgresStorage) attachItemsToSlice(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	refs := make([]*model.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	return s.attachItems(ctx, refs)
}

// attachItems одним заходом загружает позиции и дополнения для набора
// заказов и раскладывает их по заказам, избегая проблемы N+1.
func (s *postgresStorage) attachItems(ctx context.Context, orders []*model.Order) error {
	uids := make([]string, len(orders))
	byUID := make(map[string]*model.Order, len(orders))
	for i, order := range orders {
		uids[i] = order.OrderUID
		order.Items = []model.OrderItem{}
		byUID[order.OrderUID] = order
	}

	itemsQuery, args, err := sqlx.In(`SELECT id, order_uid, product_id, size, quantity, unit_price FROM order_items WHERE order_uid IN (?) ORDER BY id`, uids)
	if err != nil {
		return fmt.Errorf("не удалось построить запрос позиций: %w", err)
	}
	itemsQuery = s.db.Rebind(itemsQuery)

	var items []model.OrderItem
	if err := s.db.SelectContext(ctx, &items, itemsQuery, args...); err != nil {
		return fmt.Errorf("не удалось получить позиции заказов: %w", err)
	}

	accQuery, accArgs, err := sqlx.In(`SELECT a.id, a.item_id, a.name, a.price FROM item_accessories a JOIN order_items i ON a.item_id = i.id WHERE i.order_uid IN (?) ORDER BY a.id`, uids)
	if err != nil {
		return fmt.Errorf("не удалось построить запрос дополнений: %w", err)
	}
	accQuery = s.db.Rebind(accQuery)

	var accessories []model.Accessory
	if err := s.db.SelectContext(ctx, &accessories, accQuery, accArgs...); err != nil {
		return fmt.Errorf("не удалось получить дополнения позиций: %w", err)
	}

	accByItem := make(map[int][]model.Accessory)
	for _, acc := range accessories {
		accByItem[acc.ItemID] = append(accByItem[acc.ItemID], acc)
	}

	for _, item := range items {
		item.Accessories = accByItem[item.ID]
		if item.Accessories == nil {
			item.Accessories = []model.Accessory{}
		}
		if order, ok := byUID[item.OrderUID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	return nil
}

// Close закрывает соединение с БД.
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
