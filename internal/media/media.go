package media

import (
	"strings"

	"storefront/internal/config"
)

// MediaRef - ссылка на медиа-файл товара. Либо DataURL (инлайн),
// либо ID файла в хранилище.
type MediaRef struct {
	ID      string `json:"id,omitempty"`
	DataURL string `json:"dataUrl,omitempty"`
}

// Resolver вычисляет отображаемый URL картинки товара.
type Resolver struct {
	baseURL     string
	placeholder string
}

// NewResolver создает Resolver из конфигурации.
func NewResolver(cfg config.MediaConfig) *Resolver {
	return &Resolver{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		placeholder: cfg.Placeholder,
	}
}

// Placeholder возвращает URL картинки-заглушки.
func (r *Resolver) Placeholder() string {
	return r.placeholder
}

// ProductImageURL возвращает URL первой картинки товара.
// Приоритет: массив media (новый формат), затем массив images (legacy),
// затем заглушка. Абсолютные URL и data-URL возвращаются как есть.
func (r *Resolver) ProductImageURL(media []MediaRef, images []string) string {
	if len(media) > 0 {
		first := media[0]
		if first.DataURL != "" {
			return first.DataURL
		}
		if first.ID != "" {
			if isAbsolute(first.ID) {
				return first.ID
			}
			return r.baseURL + "/upload/media/" + first.ID
		}
	}

	if len(images) > 0 {
		image := images[0]
		if isAbsolute(image) {
			return image
		}
		return r.baseURL + "/upload/images/" + image
	}

	return r.placeholder
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http") || strings.HasPrefix(ref, "data:")
}
