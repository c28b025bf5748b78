package voting

import (
	"fmt"

	"github.com/marcelojr/urna-aberta/internal/domain"
)

func CounterKeyTotalEnquete(id domain.EnqueteID) string {
	return fmt.Sprintf("enquete:%s:total", id)
}

func CounterKeyOpcao(enqueteID domain.EnqueteID, opcaoID domain.OpcaoID) string {
	return fmt.Sprintf("enquete:%s:opcao:%s", enqueteID, opcaoID)
}
