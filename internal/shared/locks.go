package shared

// BillingTickLockKey guards the daily invoice tick across worker replicas.
const BillingTickLockKey = "billing:tick:lock"

// GLIntegrityLockKey guards the ledger integrity sweep.
const GLIntegrityLockKey = "billing:gl_integrity:lock"
