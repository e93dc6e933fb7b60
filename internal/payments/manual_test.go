package payments

import (
	"context"
	"strings"
	"testing"

	"stayvest-backend/internal/affiliates"
	"stayvest-backend/internal/collections"
	"stayvest-backend/internal/domain"
	"stayvest-backend/internal/settlement"
	"stayvest-backend/internal/users"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupManualTest(t *testing.T) (*ManualService, *gorm.DB) {
	db := setupPaymentsDB(t)
	svc := &ManualService{
		DB:          db,
		Collections: &collections.Service{DB: db},
		Settlement:  &settlement.Service{DB: db},
		Users:       &users.Service{DB: db},
		Affiliates:  &affiliates.Service{DB: db},
		Bank: BankDetails{
			AccountName:   "StayVest Holdings Ltd",
			AccountNumber: "0123456789",
			BankName:      "First Capital Bank",
		},
	}
	return svc, db
}

func TestManualInitiate_IssuesReferenceAndInstructions(t *testing.T) {
	svc, db := setupManualTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	res, err := svc.Initiate(context.Background(), ManualInitiateInput{
		CollectionID:  collection.CollectionID,
		PricingTierID: tier.PricingTierID,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ReferenceCode, "MP-"))
	assert.Len(t, res.ReferenceCode, 11)
	assert.Equal(t, "72500.00", res.Amount)
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "First Capital Bank", res.Bank.BankName)

	// No payment row until proof is submitted.
	var count int64
	db.Model(&domain.Payment{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestManualSubmitProof_RequiresProofURL(t *testing.T) {
	svc, db := setupManualTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	_, err := svc.SubmitProof(context.Background(), ManualSubmitInput{
		ReferenceCode: "MP-TESTREF1",
		CollectionID:  collection.CollectionID,
		PricingTierID: tier.PricingTierID,
		Email:         "bank@example.com",
	})
	assert.ErrorIs(t, err, ErrProofRequired)
}

func TestManualSubmitProof_CreatesPendingPaymentAndBuyer(t *testing.T) {
	svc, db := setupManualTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	payment, err := svc.SubmitProof(context.Background(), ManualSubmitInput{
		ReferenceCode: "MP-TESTREF2",
		CollectionID:  collection.CollectionID,
		PricingTierID: tier.PricingTierID,
		Email:         "bank@example.com",
		Fullname:      "Bank Buyer",
		ProofURL:      "https://storage.stayvest.app/proofs/slip.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, payment.Status)
	assert.Equal(t, domain.ProviderManual, payment.Provider)
	assert.Equal(t, "MP-TESTREF2", payment.ExternalID)

	// The guest account exists before any admin decision.
	var buyer domain.User
	require.NoError(t, db.Where("email = ?", "bank@example.com").First(&buyer).Error)
	assert.Equal(t, "guest", buyer.Role)

	// Double-submit of the same reference returns the original claim.
	again, err := svc.SubmitProof(context.Background(), ManualSubmitInput{
		ReferenceCode: "MP-TESTREF2",
		CollectionID:  collection.CollectionID,
		PricingTierID: tier.PricingTierID,
		Email:         "bank@example.com",
		ProofURL:      "https://storage.stayvest.app/proofs/slip2.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, payment.PaymentID, again.PaymentID)
}

func TestManualApprove_SettlesOnce(t *testing.T) {
	svc, db := setupManualTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	_, err := svc.SubmitProof(context.Background(), ManualSubmitInput{
		ReferenceCode: "MP-APPROVE1",
		CollectionID:  collection.CollectionID,
		PricingTierID: tier.PricingTierID,
		Email:         "approve@example.com",
		ProofURL:      "https://storage.stayvest.app/proofs/a.jpg",
	})
	require.NoError(t, err)

	result, err := svc.Approve(context.Background(), "MP-APPROVE1")
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)

	var payment domain.Payment
	require.NoError(t, db.Where("external_id = ?", "MP-APPROVE1").First(&payment).Error)
	assert.Equal(t, domain.PaymentSuccess, payment.Status)

	var ownership domain.Ownership
	require.NoError(t, db.Where("payment_id = ?", payment.PaymentID).First(&ownership).Error)
	assert.Equal(t, domain.MethodBankTransfer, ownership.PaymentMethod)

	// Second approve (double click) replays, it does not duplicate.
	replay, err := svc.Approve(context.Background(), "MP-APPROVE1")
	require.NoError(t, err)
	assert.True(t, replay.AlreadyProcessed)

	var count int64
	db.Model(&domain.Ownership{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestManualApprove_UnknownReference(t *testing.T) {
	svc, _ := setupManualTest(t)
	_, err := svc.Approve(context.Background(), "MP-NOPE0000")
	assert.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestManualReject_FlipsStatusAndBlocksApproval(t *testing.T) {
	svc, db := setupManualTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	_, err := svc.SubmitProof(context.Background(), ManualSubmitInput{
		ReferenceCode: "MP-REJECT01",
		CollectionID:  collection.CollectionID,
		PricingTierID: tier.PricingTierID,
		Email:         "reject@example.com",
		ProofURL:      "https://storage.stayvest.app/proofs/r.jpg",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Reject(context.Background(), "MP-REJECT01"))

	var payment domain.Payment
	require.NoError(t, db.Where("external_id = ?", "MP-REJECT01").First(&payment).Error)
	assert.Equal(t, domain.PaymentRejected, payment.Status)

	_, err = svc.Approve(context.Background(), "MP-REJECT01")
	assert.ErrorIs(t, err, ErrPaymentNotPending)

	var count int64
	db.Model(&domain.Ownership{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestManualListPending(t *testing.T) {
	svc, db := setupManualTest(t)
	collection, tier := seedOffering(t, db, 500, 72500)

	for _, ref := range []string{"MP-LIST0001", "MP-LIST0002"} {
		_, err := svc.SubmitProof(context.Background(), ManualSubmitInput{
			ReferenceCode: ref,
			CollectionID:  collection.CollectionID,
			PricingTierID: tier.PricingTierID,
			Email:         "list@example.com",
			ProofURL:      "https://storage.stayvest.app/proofs/p.jpg",
		})
		require.NoError(t, err)
	}
	_, err := svc.Approve(context.Background(), "MP-LIST0001")
	require.NoError(t, err)

	pending, err := svc.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "MP-LIST0002", pending[0].ExternalID)
}
