package baseDataService

import (
	"context"
	"errors"
	"fmt"

	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"github.com/zsmith-jtec/AFKPI/pkg/weeks"
	"gorm.io/gorm"
)

type BaseDataService struct {
	DB *gorm.DB
}

// GetWeekOrLatest returns the loaded week containing the given date, or the
// most recent loaded week when date is empty. A nil week with a nil error
// means nothing has been loaded for it yet.
func (b *BaseDataService) GetWeekOrLatest(ctx context.Context, date string) (*storage.Week, error) {
	query := b.DB.WithContext(ctx).Model(&storage.Week{})

	if date != "" {
		w, ok := weeks.Resolve(date)
		if !ok {
			return nil, fmt.Errorf("'%s' is not a date", date)
		}
		query = query.Where("week_start = ?", w.Key())
	} else {
		query = query.Order("week_start desc")
	}

	var week *storage.Week
	res := query.First(&week)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return week, nil
}
