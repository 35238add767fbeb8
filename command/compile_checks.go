package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[UpsertSendPolicyMessage]    = (*UpsertSendPolicyCommand)(nil)
	_ gocmd.Commander[ProvisionSubaccountMessage] = (*ProvisionSubaccountCommand)(nil)
	_ gocmd.Commander[RotateCredentialMessage]    = (*RotateCredentialCommand)(nil)
	_ gocmd.Commander[IngestWebhookMessage]       = (*IngestWebhookCommand)(nil)
	_ gocmd.Commander[EnqueueJobMessage]          = (*EnqueueJobCommand)(nil)
)
