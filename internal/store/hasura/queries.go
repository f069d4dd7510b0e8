package hasura

const getActiveAccounts = `
query GetActiveInstagramAccounts {
  instagram_accounts(where: {is_active: {_eq: true}}) {
    id
    username
    profile_id
    scrape_frequency
    is_active
  }
}`

const createScrapingLog = `
mutation CreateScrapingLog($instagram_account_id: uuid!, $status: String!) {
  insert_scraping_logs_one(object: {instagram_account_id: $instagram_account_id, status: $status}) {
    id
  }
}`

const updateScrapingLog = `
mutation UpdateScrapingLog($id: uuid!, $status: String!, $finished_at: timestamptz, $items_scraped: Int, $error_message: String) {
  update_scraping_logs_by_pk(
    pk_columns: {id: $id},
    _set: {status: $status, finished_at: $finished_at, items_scraped: $items_scraped, error_message: $error_message}
  ) {
    id
  }
}`

const insertScrapedData = `
mutation InsertScrapedData($objects: [scraped_data_insert_input!]!) {
  insert_scraped_data(
    objects: $objects,
    on_conflict: {
      constraint: scraped_data_instagram_account_id_post_id_key,
      update_columns: [caption, image_url, likes_count, comments_count, metadata, scraped_at]
    }
  ) {
    affected_rows
  }
}`

const acquireLease = `
mutation AcquireScrapeLease($object: scrape_leases_insert_input!, $now: timestamptz!, $holder: String!) {
  insert_scrape_leases(
    objects: [$object],
    on_conflict: {
      constraint: scrape_leases_pkey,
      update_columns: [holder, acquired_at, expires_at],
      where: {_or: [{expires_at: {_lt: $now}}, {holder: {_eq: $holder}}]}
    }
  ) {
    affected_rows
  }
}`

const releaseLease = `
mutation ReleaseScrapeLease($account_id: uuid!, $holder: String!) {
  delete_scrape_leases(where: {account_id: {_eq: $account_id}, holder: {_eq: $holder}}) {
    affected_rows
  }
}`

const accountFields = `
    id
    username
    profile_id
    scrape_frequency
    is_active
    notes
    created_at
    updated_at`

const getAccounts = `
query GetInstagramAccounts {
  instagram_accounts(order_by: {created_at: desc}) {` + accountFields + `
    scraping_logs_aggregate {
      aggregate {
        count
      }
    }
    scraping_logs(order_by: {started_at: desc}, limit: 1) {
      id
      status
      started_at
      finished_at
      items_scraped
      error_message
    }
  }
}`

const getAccount = `
query GetInstagramAccount($id: uuid!) {
  instagram_accounts_by_pk(id: $id) {` + accountFields + `
  }
}`

const addAccount = `
mutation AddInstagramAccount($username: String!, $profile_id: String, $scrape_frequency: String!, $notes: String, $is_active: Boolean!) {
  insert_instagram_accounts_one(object: {
    username: $username,
    profile_id: $profile_id,
    scrape_frequency: $scrape_frequency,
    notes: $notes,
    is_active: $is_active
  }) {` + accountFields + `
  }
}`

const updateAccount = `
mutation UpdateInstagramAccount($id: uuid!, $username: String!, $profile_id: String, $scrape_frequency: String!, $notes: String, $is_active: Boolean!) {
  update_instagram_accounts_by_pk(
    pk_columns: {id: $id},
    _set: {
      username: $username,
      profile_id: $profile_id,
      scrape_frequency: $scrape_frequency,
      notes: $notes,
      is_active: $is_active
    }
  ) {` + accountFields + `
  }
}`

const updateAccountStatus = `
mutation UpdateAccountStatus($id: uuid!, $is_active: Boolean!) {
  update_instagram_accounts_by_pk(pk_columns: {id: $id}, _set: {is_active: $is_active}) {
    id
  }
}`

const deleteAccount = `
mutation DeleteAccount($id: uuid!) {
  delete_instagram_accounts_by_pk(id: $id) {
    id
  }
}`

const getScrapingLogs = `
query GetScrapingLogs($limit: Int!, $offset: Int!, $where: scraping_logs_bool_exp) {
  scraping_logs(order_by: {started_at: desc}, limit: $limit, offset: $offset, where: $where) {
    id
    instagram_account_id
    status
    started_at
    finished_at
    items_scraped
    error_message
    instagram_account {
      id
      username
    }
  }
  scraping_logs_aggregate(where: $where) {
    aggregate {
      count
    }
  }
}`

const getDashboardStats = `
query GetDashboardStats($recent: Int!) {
  instagram_accounts_aggregate {
    aggregate {
      count
    }
  }
  instagram_accounts(where: {is_active: {_eq: true}}) {
    id
    username
    scrape_frequency
    is_active
    scraping_logs(order_by: {started_at: desc}, limit: 1) {
      id
      status
      started_at
      finished_at
      items_scraped
    }
  }
  scraping_logs_aggregate {
    aggregate {
      count
    }
  }
  scraping_logs(order_by: {started_at: desc}, limit: $recent) {
    id
    instagram_account_id
    status
    started_at
    finished_at
    items_scraped
    error_message
    instagram_account {
      id
      username
    }
  }
}`
