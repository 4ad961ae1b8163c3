package calendar

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Page описывает одну страницу элементов.
type Page[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`      // номер страницы (с 1)
	PageSize int  `json:"page_size"` // количество элементов на странице
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_prev"`
	Total    int  `json:"total"`
}

// PageParams приводит номер и размер страницы к допустимым значениям
// и возвращает limit/offset для запроса к БД.
func PageParams(page, pageSize int) (normPage, limit, offset int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

// NewPage собирает страницу из уже выбранных из БД элементов и общего количества.
func NewPage[T any](items []T, page, pageSize int, total int64) Page[T] {
	page, pageSize, offset := PageParams(page, pageSize)
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		HasPrev:  page > 1,
		HasNext:  int64(offset+len(items)) < total,
		Total:    int(total),
	}
}
