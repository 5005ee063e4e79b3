// backend/src/engine/shareclasses.go
package engine

import (
	"github.com/username/capsim/backend/src/models"
)

// ShareClassesAsOf reconstructs the state of every share class at a point in
// time by replaying class-defining and class-amending transactions in
// chronological order. Amendments to a class that is not yet known are
// silent no-ops. The returned classes are fresh copies; the input
// transactions are never mutated.
func ShareClassesAsOf(transactions []models.Transaction, asOfDate string) map[string]*models.ShareClass {
	shareClasses := make(map[string]*models.ShareClass)

	relevant := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Base().Date <= asOfDate {
			relevant = append(relevant, tx)
		}
	}
	models.SortTransactionsByDate(relevant)

	for _, tx := range relevant {
		switch t := tx.(type) {
		case *models.FoundingTransaction:
			for i := range t.ShareClasses {
				sc := t.ShareClasses[i].Clone()
				shareClasses[sc.ID] = sc
			}
		case *models.FinancingRoundTransaction:
			sc := t.NewShareClass.Clone()
			shareClasses[sc.ID] = sc
		case *models.UpdateShareClassTransaction:
			if sc, ok := shareClasses[t.ShareClassIDToUpdate]; ok {
				t.UpdatedProperties.ApplyTo(sc)
			}
		}
	}

	return shareClasses
}
