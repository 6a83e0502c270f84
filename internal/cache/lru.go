package cache

import (
	"container/list"
	"context"
	"log"
	"sync"

	"storefront/internal/database"
	"storefront/internal/metrics"
	"storefront/internal/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -source=lru.go -destination=./mocks/cache_mock.go -package=mocks Cache

// Cache определяет интерфейс для кэширования заказов.
// Контекст добавлен для поддержки сквозной трассировки.
type Cache interface {
	Set(ctx context.Context, key string, order *model.Order)
	Get(ctx context.Context, key string) (*model.Order, bool)
}

// lruCache реализует LRU (Least Recently Used) кэш заказов.
type lruCache struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*list.Element
	queue    *list.List
	tracer   trace.Tracer // Для трассировки
}

type cacheItem struct {
	key   string
	order *model.Order
}

// NewLRUCache создает новый LRU-кэш с заданной емкостью.
func NewLRUCache(capacity int) Cache {
	return &lruCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		queue:    list.New(),
		tracer:   otel.Tracer("lru-cache"), // Инициализация трейсера
	}
}

// Set кладет заказ в кэш. Повторный Set по тому же ключу перезаписывает
// значение - так кэш обновляется после перехода статуса.
func (c *lruCache) Set(ctx context.Context, key string, order *model.Order) {
	// Создаем span для трассировки
	_, span := c.tracer.Start(ctx, "Cache.Set")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return
	}

	if element, exists := c.items[key]; exists {
		c.queue.MoveToFront(element)
		element.Value.(*cacheItem).order = order
		return
	}

	if c.queue.Len() >= c.capacity {
		c.removeOldest()
	}

	item := &cacheItem{key: key, order: order}
	element := c.queue.PushFront(item)
	c.items[key] = element

	// Обновляем метрику размера кэша
	metrics.CacheSize.Set(float64(c.queue.Len()))
}

func (c *lruCache) Get(ctx context.Context, key string) (*model.Order, bool) {
	// Создаем span для трассировки
	_, span := c.tracer.Start(ctx, "Cache.Get")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		c.queue.MoveToFront(element)
		return element.Value.(*cacheItem).order, true
	}

	return nil, false
}

// removeOldest удаляет самый старый элемент (внутренняя функция, мьютекс уже захвачен).
func (c *lruCache) removeOldest() {
	element := c.queue.Back()
	if element != nil {
		item := c.queue.Remove(element).(*cacheItem)
		delete(c.items, item.key)

		// Обновляем метрики
		metrics.CacheEvictions.Inc()
		metrics.CacheSize.Set(float64(c.queue.Len()))
	}
}

// WarmUp загружает последние заказы из БД в кэш.
func WarmUp(ctx context.Context, storage database.Storage, cache Cache, limit int) error {
	log.Println("Выполняется прогрев кэша...")
	orders, _, err := storage.ListOrders(ctx, "", 1, limit)
	if err != nil {
		return err
	}

	for _, order := range orders {
		orderCopy := order
		// Передаем контекст
		cache.Set(ctx, order.OrderUID, &orderCopy)
	}

	log.Printf("Кэш прогрет. Загружено %d заказов.", len(orders))
	return nil
}
