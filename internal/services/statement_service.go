package services

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/corebank/ledger/internal/models"
)

// SettlementService renders completed transfers as ISO 20022 messages
// for the downstream settlement system: pacs.008 for the credit
// transfer itself, pacs.002 for its status.
type SettlementService struct {
	entries  *TransactionLog
	accounts *AccountStore
	bankID   string
}

func NewSettlementService(entries *TransactionLog, accounts *AccountStore, bankID string) *SettlementService {
	if bankID == "" {
		bankID = "COREBANK"
	}
	return &SettlementService{
		entries:  entries,
		accounts: accounts,
		bankID:   bankID,
	}
}

// ExportTransfer builds the pacs.008 document for a transfer pair
// identified by its reference number and returns it as XML.
func (s *SettlementService) ExportTransfer(referenceNumber string) (string, error) {
	out, in, err := s.resolvePair(referenceNumber)
	if err != nil {
		return "", err
	}

	fromAccount, err := s.accounts.GetByID(out.AccountID)
	if err != nil {
		return "", err
	}
	toAccount, err := s.accounts.GetByID(in.AccountID)
	if err != nil {
		return "", err
	}

	doc, err := s.buildPacs008(out, fromAccount, toAccount)
	if err != nil {
		return "", err
	}
	return toXML(doc)
}

// StatusReport builds the pacs.002 status report for a transfer pair.
func (s *SettlementService) StatusReport(referenceNumber, status string) (string, error) {
	out, _, err := s.resolvePair(referenceNumber)
	if err != nil {
		return "", err
	}

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(uuid.New().String()),
			CreDtTm: common.ISODateTime(time.Now()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    max35(out.TransactionID),
				OrgnlEndToEndId: max35(out.ReferenceNumber),
				OrgnlTxId:       max35(out.TransactionID),
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}
	return toXML(doc)
}

func (s *SettlementService) resolvePair(referenceNumber string) (*models.Transaction, *models.Transaction, error) {
	entries, err := s.entries.FindByReference(referenceNumber)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) != 2 {
		return nil, nil, models.NewLedgerError(models.ErrTransactionNotFound,
			fmt.Sprintf("reference %s does not identify a transfer pair", referenceNumber))
	}

	var out, in *models.Transaction
	for i := range entries {
		switch entries[i].Type {
		case models.TransactionTypeTransferOut:
			out = &entries[i]
		case models.TransactionTypeTransferIn:
			in = &entries[i]
		}
	}
	if out == nil || in == nil {
		return nil, nil, models.NewLedgerError(models.ErrTransactionNotFound,
			fmt.Sprintf("reference %s does not identify a transfer pair", referenceNumber))
	}
	return out, in, nil
}

func (s *SettlementService) buildPacs008(out *models.Transaction, from, to *models.Account) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	settlementDate := time.Now()

	// XML amount is presentation only; the ledger's decimal remains the
	// value of record.
	amount := out.Amount.InexactFloat64()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(uuid.New().String()),
			CreDtTm: common.ISODateTime(time.Now()),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(from.Currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    max35(out.TransactionID),
					EndToEndId: common.Max35Text(out.ReferenceNumber),
					TxId:       max35(out.TransactionID),
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(from.Currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.bankID)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: max140(from.AccountNumber),
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.bankID)}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: max140(to.AccountNumber),
				},
			},
		},
	}

	return doc, nil
}

func toXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func max35(s string) *common.Max35Text {
	v := common.Max35Text(s)
	return &v
}

func max140(s string) *common.Max140Text {
	v := common.Max140Text(s)
	return &v
}
